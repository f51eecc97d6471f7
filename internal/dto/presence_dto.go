package dto

type HeartbeatRequest struct {
	UserId string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=teacher student"`
}

type MarkOfflineRequest struct {
	UserId string `json:"userId" validate:"required"`
}

type PresenceQueryRequest struct {
	UserIds []string `json:"userIds" validate:"required,min=1"`
}
