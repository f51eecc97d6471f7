package entity

import "time"

const (
	SessionActive = "active"
	SessionPaused = "paused"
	SessionEnded  = "ended"
)

const (
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
)

// StudentRef identifies one connected student. Membership is a set of these
// pairs, mutated only through atomic add/remove so concurrent joins from
// different students never clobber each other.
type StudentRef struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// StudentProgress is one student's cursor within a session. Each entry is
// written by exactly one student (plus the reaper at termination), so
// read-modify-write on the containing map stays safe per key.
type StudentProgress struct {
	CurrentSlide  int                    `json:"currentSlide"`
	JoinedAt      time.Time              `json:"joinedAt"`
	LastActivity  time.Time              `json:"lastActivity"`
	SlidesEngaged []int                  `json:"slidesEngaged"`
	Status        string                 `json:"status"`
	LeftAt        *time.Time             `json:"leftAt,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type ChatMessage struct {
	Id         string    `json:"id"`
	SenderId   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
}

// AttendanceRecord is the immutable per-student summary snapshotted when a
// session terminates.
type AttendanceRecord struct {
	StudentId        string `json:"studentId"`
	StudentName      string `json:"studentName"`
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
}

// Session is the shared aggregate driving a live lesson. The schema is the
// concurrency control: cursor and lock fields belong to the teacher,
// ConnectedStudents/StudentIds are set-mutated by any student, and each
// StudentProgress key belongs to one student.
type Session struct {
	Id string `json:"id"`

	TeacherId  string `json:"teacherId"`
	ClassId    string `json:"classId"`
	LessonId   string `json:"lessonId"`
	LessonName string `json:"lessonName"`

	CurrentSlide   int   `json:"currentSlide"`
	UnlockedSlides []int `json:"unlockedSlides"`
	IsLocked       bool  `json:"isLocked"`

	Status string `json:"status"`

	StartTime       time.Time  `json:"startTime"`
	LastActivity    time.Time  `json:"lastActivity"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationSeconds int64      `json:"durationSeconds"`

	ConnectedStudents []StudentRef                `json:"connectedStudents"`
	StudentIds        []string                    `json:"studentIds"`
	StudentProgress   map[string]*StudentProgress `json:"studentProgress"`

	TeacherNotes map[string]string `json:"teacherNotes"`
	ChatMessages []ChatMessage     `json:"chatMessages"`
	RaisedHands  []string          `json:"raisedHands"`

	AttendanceCount int                `json:"attendanceCount"`
	CompletionRate  float64            `json:"completionRate"`
	FinalAttendance []AttendanceRecord `json:"finalAttendance,omitempty"`
}

// IsEnded reports whether the session reached its terminal state. No writes
// to cursor or membership fields are valid afterwards.
func (s *Session) IsEnded() bool {
	return s.Status == SessionEnded
}

// HasStudent reports whether the student currently appears in the
// connected set.
func (s *Session) HasStudent(studentId string) bool {
	for _, ref := range s.ConnectedStudents {
		if ref.Id == studentId {
			return true
		}
	}
	return false
}

// HasUnlocked reports whether the slide is in the unlocked set.
func (s *Session) HasUnlocked(index int) bool {
	for _, slide := range s.UnlockedSlides {
		if slide == index {
			return true
		}
	}
	return false
}
