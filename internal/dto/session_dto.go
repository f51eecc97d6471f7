package dto

import "classlive-be/internal/entity"

type CreateSessionRequest struct {
	TeacherId  string `json:"teacherId" validate:"required"`
	ClassId    string `json:"classId" validate:"required"`
	LessonId   string `json:"lessonId" validate:"required"`
	LessonName string `json:"lessonName"`
}

type CreateSessionResponse struct {
	Id string `json:"id"`
}

type AdvanceSlideRequest struct {
	Slide int `json:"slide" validate:"min=0"`
}

type UnlockSlideRequest struct {
	Slide int `json:"slide" validate:"min=0"`
}

type SetLockRequest struct {
	Locked bool `json:"locked"`
}

type JoinSessionRequest struct {
	StudentId   string `json:"studentId" validate:"required"`
	StudentName string `json:"studentName" validate:"required"`
}

type LeaveSessionRequest struct {
	StudentId   string `json:"studentId" validate:"required"`
	StudentName string `json:"studentName" validate:"required"`
}

type UpdateProgressRequest struct {
	StudentId string                 `json:"studentId" validate:"required"`
	Slide     int                    `json:"slide" validate:"min=0"`
	Extra     map[string]interface{} `json:"extra"`
}

type TeacherNoteRequest struct {
	Slide int    `json:"slide" validate:"min=0"`
	Note  string `json:"note" validate:"required"`
}

type ChatMessageRequest struct {
	SenderId   string `json:"senderId" validate:"required"`
	SenderName string `json:"senderName" validate:"required"`
	Text       string `json:"text" validate:"required,max=2000"`
}

type RaiseHandRequest struct {
	StudentId string `json:"studentId" validate:"required"`
}

type SessionListResponse struct {
	Sessions []*entity.Session `json:"sessions"`
	Reaped   int               `json:"reaped"`
}
