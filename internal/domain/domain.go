package domain

import (
	"github.com/yungbote/lessonpay-backend/internal/domain/learning"
	"github.com/yungbote/lessonpay-backend/internal/domain/payments"
	"github.com/yungbote/lessonpay-backend/internal/domain/user"
)

type Lesson = learning.Lesson
type LessonStatus = learning.LessonStatus
type ProgressRecord = learning.ProgressRecord
type ProgressStatus = learning.ProgressStatus
type PaymentMethod = learning.PaymentMethod
type QuizAttemptEntry = learning.QuizAttemptEntry
type Bookmark = learning.Bookmark

type UserLearningStats = user.UserLearningStats

type PaymentAttempt = payments.PaymentAttempt
type AttemptStatus = payments.AttemptStatus
type Provider = payments.Provider
type PaymentGatewayEvent = payments.PaymentGatewayEvent
type GatewayEventStatus = payments.GatewayEventStatus

const (
	LessonStatusDraft     = learning.LessonStatusDraft
	LessonStatusPublished = learning.LessonStatusPublished
	LessonStatusArchived  = learning.LessonStatusArchived

	ProgressStatusNotStarted = learning.ProgressStatusNotStarted
	ProgressStatusInProgress = learning.ProgressStatusInProgress
	ProgressStatusCompleted  = learning.ProgressStatusCompleted

	PaymentMethodFree    = learning.PaymentMethodFree
	PaymentMethodCard    = learning.PaymentMethodCard
	PaymentMethodBank    = learning.PaymentMethodBank
	PaymentMethodWallet  = learning.PaymentMethodWallet
	PaymentMethodPaypal  = learning.PaymentMethodPaypal
	PaymentMethodMomo    = learning.PaymentMethodMomo
	PaymentMethodPending = learning.PaymentMethodPending

	AttemptStatusPending   = payments.AttemptStatusPending
	AttemptStatusSucceeded = payments.AttemptStatusSucceeded
	AttemptStatusFailed    = payments.AttemptStatusFailed
	AttemptStatusExpired   = payments.AttemptStatusExpired

	ProviderMomo     = payments.ProviderMomo
	ProviderMidtrans = payments.ProviderMidtrans

	GatewayEventStatusReceived  = payments.GatewayEventStatusReceived
	GatewayEventStatusProcessed = payments.GatewayEventStatusProcessed
	GatewayEventStatusIgnored   = payments.GatewayEventStatusIgnored
	GatewayEventStatusFailed    = payments.GatewayEventStatusFailed
)

// AllModels lists every persisted entity, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&Lesson{},
		&UserLearningStats{},
		&ProgressRecord{},
		&PaymentAttempt{},
		&PaymentGatewayEvent{},
	}
}
