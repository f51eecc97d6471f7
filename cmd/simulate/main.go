package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"classlive-be/internal/config"
	"classlive-be/internal/dto"
	"classlive-be/internal/entity"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/repository/implementation"
	"classlive-be/internal/repository/memory"
	"classlive-be/internal/service"
	memstore "classlive-be/pkg/docstore/memory"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/fatih/color"
)

// Runs a scripted classroom against the in-memory stack: one teacher
// driving slides, three students joining and reporting progress, with a
// live watcher printing every state the fan-out delivers.
func main() {
	teacher := color.New(color.FgCyan, color.Bold)
	student := color.New(color.FgGreen)
	watcher := color.New(color.FgYellow)

	fmt.Println("=== Live Session Simulation ===")

	cfg := config.Load()
	ctx := context.Background()

	store := memstore.NewStore()
	repo := implementation.NewSessionRepository(store)
	presenceRepo := implementation.NewPresenceRepository(store)
	cache := memory.NewSessionCache(cfg.Session.CacheTTL)
	nop := logger.NewNopLogger()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	publisherService := service.NewPublisherService("session_events", "simulate", pubSub, nil, nop)

	presenceService := service.NewPresenceService(presenceRepo, nop)
	sessionService := service.NewSessionService(repo, cache, publisherService, nil, nil, nop)
	membershipService := service.NewMembershipService(repo, cache, presenceService, publisherService, nop)
	reaperService := service.NewReaperService(repo, sessionService, publisherService, cfg.Session, nop)
	watchService := service.NewWatchService(repo, reaperService, cfg.Session, nop)

	teacher.Println("[teacher] creating session")
	session, err := sessionService.Create(ctx, &dto.CreateSessionRequest{
		TeacherId:  "teacher-1",
		ClassId:    "class-7b",
		LessonId:   "lesson-fractions",
		LessonName: "Fractions 101",
	})
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	teacher.Printf("[teacher] session %s is live\n", session.Id)

	unsub, err := watchService.SubscribeToSession(ctx, session.Id, func(s *entity.Session) {
		if s == nil {
			watcher.Println("[watch] session closed")
			return
		}
		watcher.Printf("[watch] slide=%d connected=%d hands=%d status=%s\n",
			s.CurrentSlide, len(s.ConnectedStudents), len(s.RaisedHands), s.Status)
	})
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	students := []entity.StudentRef{
		{Id: "student-1", Name: "Ayu"},
		{Id: "student-2", Name: "Bima"},
		{Id: "student-3", Name: "Citra"},
	}
	for _, st := range students {
		if err := membershipService.Join(ctx, session.Id, st.Id, st.Name); err != nil {
			log.Fatalf("join %s: %v", st.Id, err)
		}
		student.Printf("[%s] joined\n", st.Name)
	}

	for slide := 1; slide <= 3; slide++ {
		if err := sessionService.UnlockSlide(ctx, session.Id, slide); err != nil {
			log.Fatalf("unlock: %v", err)
		}
		if err := sessionService.AdvanceSlide(ctx, session.Id, slide); err != nil {
			log.Fatalf("advance: %v", err)
		}
		teacher.Printf("[teacher] advanced to slide %d\n", slide)

		for _, st := range students {
			err := membershipService.UpdateProgress(ctx, session.Id, &dto.UpdateProgressRequest{
				StudentId: st.Id,
				Slide:     slide,
			})
			if err != nil {
				log.Fatalf("progress %s: %v", st.Id, err)
			}
		}
		time.Sleep(200 * time.Millisecond)
	}

	if err := sessionService.RaiseHand(ctx, session.Id, "student-2"); err != nil {
		log.Fatalf("raise hand: %v", err)
	}
	student.Println("[Bima] raised hand")

	if _, err := sessionService.PostChatMessage(ctx, session.Id, &dto.ChatMessageRequest{
		SenderId:   "student-2",
		SenderName: "Bima",
		Text:       "can you repeat the last step?",
	}); err != nil {
		log.Fatalf("chat: %v", err)
	}

	if err := membershipService.Leave(ctx, session.Id, "student-3", "Citra"); err != nil {
		log.Fatalf("leave: %v", err)
	}
	student.Println("[Citra] left")

	ended, err := sessionService.End(ctx, session.Id)
	if err != nil {
		log.Fatalf("end: %v", err)
	}
	teacher.Printf("[teacher] ended after %ds, attendance=%d, completion=%.2f\n",
		ended.DurationSeconds, ended.AttendanceCount, ended.CompletionRate)

	time.Sleep(300 * time.Millisecond)
	fmt.Println("=== Simulation complete ===")
}
