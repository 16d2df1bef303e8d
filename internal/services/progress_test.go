package services

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	types "github.com/yungbote/lessonpay-backend/internal/domain"
	pkgerrors "github.com/yungbote/lessonpay-backend/internal/pkg/errors"
)

func TestUpdateProgressClampsWatchTime(t *testing.T) {
	h := newHarness(t)
	lesson := h.lesson(t, 0, 10)
	userID := uuid.New()
	h.enroll(t, userID, lesson)

	rec, err := h.progress.UpdateProgress(h.ctx, userID, lesson.ID, 1000, 500)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if rec.WatchTimeSeconds != 500 || rec.ProgressPercentage != 100 || rec.Status != types.ProgressStatusCompleted {
		t.Fatalf("want watch=500 pct=100 completed, got watch=%v pct=%d status=%s", rec.WatchTimeSeconds, rec.ProgressPercentage, rec.Status)
	}
	if rec.CompletedAt == nil || rec.StartedAt == nil || rec.LastAccessedAt == nil {
		t.Fatalf("completion timestamps missing: %+v", rec)
	}
}

func TestUpdateProgressCompletionBoundary(t *testing.T) {
	cases := []struct {
		name       string
		watch      float64
		wantStatus types.ProgressStatus
		wantPct    int
	}{
		{name: "89 percent stays in progress", watch: 890, wantStatus: types.ProgressStatusInProgress, wantPct: 89},
		{name: "90 percent completes", watch: 900, wantStatus: types.ProgressStatusCompleted, wantPct: 100},
		{name: "zero watch starts", watch: 0, wantStatus: types.ProgressStatusInProgress, wantPct: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			lesson := h.lesson(t, 0, 10)
			userID := uuid.New()
			h.enroll(t, userID, lesson)

			rec, err := h.progress.UpdateProgress(h.ctx, userID, lesson.ID, tc.watch, 1000)
			if err != nil {
				t.Fatalf("UpdateProgress: %v", err)
			}
			if rec.Status != tc.wantStatus || rec.ProgressPercentage != tc.wantPct {
				t.Fatalf("want %s/%d got %s/%d", tc.wantStatus, tc.wantPct, rec.Status, rec.ProgressPercentage)
			}
		})
	}
}

func TestUpdateProgressNeverRegresses(t *testing.T) {
	h := newHarness(t)
	lesson := h.lesson(t, 0, 10)
	userID := uuid.New()
	h.enroll(t, userID, lesson)

	first, err := h.progress.UpdateProgress(h.ctx, userID, lesson.ID, 100, 1000)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if _, err := h.progress.UpdateProgress(h.ctx, userID, lesson.ID, 950, 1000); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	rewound, err := h.progress.UpdateProgress(h.ctx, userID, lesson.ID, 10, 1000)
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if rewound.Status != types.ProgressStatusCompleted || rewound.ProgressPercentage != 100 {
		t.Fatalf("completed record regressed: %s/%d", rewound.Status, rewound.ProgressPercentage)
	}
	if rewound.WatchTimeSeconds != 10 {
		t.Fatalf("rewind should still be recorded, got watch=%v", rewound.WatchTimeSeconds)
	}
	if rewound.StartedAt == nil || !rewound.StartedAt.Equal(*first.StartedAt) {
		t.Fatalf("started_at must be set once: first=%v now=%v", first.StartedAt, rewound.StartedAt)
	}
}

func TestUpdateProgressRequiresPayment(t *testing.T) {
	h := newHarness(t)
	lesson := h.lesson(t, 100000, 10)
	userID := uuid.New()
	enrolled := h.enroll(t, userID, lesson)

	_, err := h.progress.UpdateProgress(h.ctx, userID, lesson.ID, 30, 600)
	if !errors.Is(err, pkgerrors.ErrPaymentRequired) {
		t.Fatalf("want ErrPaymentRequired got %v", err)
	}
	if _, err := h.progress.CompleteManually(h.ctx, userID, lesson.ID); !errors.Is(err, pkgerrors.ErrPaymentRequired) {
		t.Fatalf("CompleteManually: want ErrPaymentRequired got %v", err)
	}
	after := h.reloadRecord(t, enrolled.ID)
	if after.Version != enrolled.Version || after.Status != types.ProgressStatusNotStarted {
		t.Fatalf("gated record was mutated: %+v", after)
	}
}

func TestUpdateProgressValidation(t *testing.T) {
	h := newHarness(t)
	lesson := h.lesson(t, 0, 10)
	userID := uuid.New()
	h.enroll(t, userID, lesson)

	cases := []struct {
		watch, total float64
	}{
		{watch: -1, total: 100},
		{watch: 1, total: 0},
		{watch: 1, total: -5},
	}
	for _, tc := range cases {
		if _, err := h.progress.UpdateProgress(h.ctx, userID, lesson.ID, tc.watch, tc.total); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("watch=%v total=%v: want ErrInvalidArgument got %v", tc.watch, tc.total, err)
		}
	}
	if _, err := h.progress.UpdateProgress(h.ctx, uuid.New(), lesson.ID, 1, 100); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("not enrolled: want ErrNotFound got %v", err)
	}
}

func TestCompleteManuallyUpdatesStreakOnce(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	a := h.lesson(t, 0, 10)
	b := h.lesson(t, 0, 10)
	h.enroll(t, userID, a)
	h.enroll(t, userID, b)

	rec, err := h.progress.CompleteManually(h.ctx, userID, a.ID)
	if err != nil {
		t.Fatalf("CompleteManually: %v", err)
	}
	if rec.Status != types.ProgressStatusCompleted || rec.ProgressPercentage != 100 || rec.CompletedAt == nil {
		t.Fatalf("manual completion incomplete: %+v", rec)
	}
	again, err := h.progress.CompleteManually(h.ctx, userID, a.ID)
	if err != nil {
		t.Fatalf("CompleteManually again: %v", err)
	}
	if !again.CompletedAt.Equal(*rec.CompletedAt) {
		t.Fatalf("completed_at must be set once")
	}
	if _, err := h.progress.UpdateProgress(h.ctx, userID, b.ID, 600, 600); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	stats, err := h.stats.GetLearningStats(dbctxFor(h), userID)
	if err != nil {
		t.Fatalf("GetLearningStats: %v", err)
	}
	if stats.CurrentStreak != 1 || stats.LongestStreak != 1 || stats.LastActiveDate == nil {
		t.Fatalf("same-day completions: want streak 1, got %+v", stats)
	}
}

func TestConcurrentProgressUpdatesAreNotLost(t *testing.T) {
	h := newHarness(t)
	lesson := h.lesson(t, 0, 10)
	userID := uuid.New()
	enrolled := h.enroll(t, userID, lesson)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := h.progress.UpdateProgress(h.ctx, userID, lesson.ID, float64(10*i), 1000); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent update: %v", err)
	}

	after := h.reloadRecord(t, enrolled.ID)
	if after.Version != enrolled.Version+writers {
		t.Fatalf("every write should land exactly once: want version=%d got=%d", enrolled.Version+writers, after.Version)
	}
	if after.Status != types.ProgressStatusInProgress {
		t.Fatalf("status: want in_progress got %s", after.Status)
	}
}

func TestQuizAttemptsAndBookmarks(t *testing.T) {
	h := newHarness(t)
	lesson := h.lesson(t, 0, 10)
	userID := uuid.New()
	h.enroll(t, userID, lesson)

	if _, err := h.progress.RecordQuizAttempt(h.ctx, userID, lesson.ID, 8, 10); err != nil {
		t.Fatalf("RecordQuizAttempt: %v", err)
	}
	rec, err := h.progress.RecordQuizAttempt(h.ctx, userID, lesson.ID, 6, 10)
	if err != nil {
		t.Fatalf("RecordQuizAttempt: %v", err)
	}
	attempts, err := rec.QuizAttemptList()
	if err != nil {
		t.Fatalf("QuizAttemptList: %v", err)
	}
	if len(attempts) != 2 || attempts[1].Percentage != 60 {
		t.Fatalf("attempts: %+v", attempts)
	}
	if rec.BestScore == nil || *rec.BestScore != 80 {
		t.Fatalf("best score: want 80 got %v", rec.BestScore)
	}
	if _, err := h.progress.RecordQuizAttempt(h.ctx, userID, lesson.ID, 11, 10); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("score above max: want ErrInvalidArgument got %v", err)
	}

	rec, err = h.progress.AddBookmark(h.ctx, userID, lesson.ID, 9999, "  outro  ")
	if err != nil {
		t.Fatalf("AddBookmark: %v", err)
	}
	marks, err := rec.BookmarkList()
	if err != nil {
		t.Fatalf("BookmarkList: %v", err)
	}
	if len(marks) != 1 || marks[0].PositionSeconds != 600 || marks[0].Note != "outro" {
		t.Fatalf("bookmark: %+v", marks)
	}
	if rec.Status != types.ProgressStatusNotStarted {
		t.Fatalf("bookmarks must not move watch state, got %s", rec.Status)
	}
}

func TestAddBookmarkTruncatesNoteByRune(t *testing.T) {
	h := newHarness(t)
	lesson := h.lesson(t, 0, 10)
	userID := uuid.New()
	h.enroll(t, userID, lesson)

	rec, err := h.progress.AddBookmark(h.ctx, userID, lesson.ID, 30, strings.Repeat("ệ", maxBookmarkNote+20))
	if err != nil {
		t.Fatalf("AddBookmark: %v", err)
	}
	marks, err := rec.BookmarkList()
	if err != nil || len(marks) != 1 {
		t.Fatalf("bookmarks: %+v err=%v", marks, err)
	}
	note := marks[0].Note
	if !utf8.ValidString(note) || utf8.RuneCountInString(note) != maxBookmarkNote {
		t.Fatalf("note: valid=%v runes=%d", utf8.ValidString(note), utf8.RuneCountInString(note))
	}
}
