package handler

import (
	"encoding/json"
	"testing"
	"time"

	"classlive-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeacherSessionsFrameShape(t *testing.T) {
	sessions := []*entity.Session{
		{Id: "s-1", TeacherId: "t-1", Status: entity.SessionActive, StartTime: time.Now()},
		{Id: "s-2", TeacherId: "t-1", Status: entity.SessionPaused, StartTime: time.Now()},
	}

	frame, err := teacherSessionsFrame(sessions)
	require.NoError(t, err)

	var decoded struct {
		Type string                   `json:"type"`
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, "teacher_sessions", decoded.Type)
	require.Len(t, decoded.Data, 2)
	assert.Equal(t, "s-1", decoded.Data[0]["id"])
	assert.Equal(t, "paused", decoded.Data[1]["status"])
}

// The dashboard expects an array even when the teacher has no live
// sessions; a JSON null would break the client's map call.
func TestTeacherSessionsFrameEmptyList(t *testing.T) {
	frame, err := teacherSessionsFrame(nil)
	require.NoError(t, err)

	var decoded struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.NotNil(t, decoded.Data)
	assert.Empty(t, decoded.Data)
}
