package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	subscribeContext   = "subscribe_member"
	unsubscribeContext = "unsubscribe_member"
)

// Outcome is the result of synchronizing one mailing list.
type Outcome struct {
	ListID    string
	Succeeded bool
	Code      int
	Message   string
}

// Result aggregates the outcomes of one synchronization call.
// Err is the failure that stopped the call, if any.
type Result struct {
	MemberID int
	Outcomes []Outcome
	Err      error
}

func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Synchronizer reconciles a member's list subscriptions against Campaign Monitor.
// Calls are synchronous and issue remote requests one list at a time, in rule order.
// The first failure is reported once and ends the call.
type Synchronizer struct {
	siteID    int
	store     Store
	connector Connector
	reporter  ErrorReporter
	logger    *zap.Logger
}

// SynchronizerOption is a functional option for configuring a Synchronizer.
type SynchronizerOption func(*Synchronizer)

func SynchronizerWithLogger(logger *zap.Logger) SynchronizerOption {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSynchronizer(siteID int, store Store, connector Connector, reporter ErrorReporter, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		siteID:    siteID,
		store:     store,
		connector: connector,
		reporter:  reporter,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubscribeMember subscribes the member to every list that applies to them.
func (s *Synchronizer) SubscribeMember(ctx context.Context, memberID int) bool {
	return s.Subscribe(ctx, memberID).Succeeded()
}

// UnsubscribeMember removes the member from every configured list they are subscribed to.
func (s *Synchronizer) UnsubscribeMember(ctx context.Context, memberID int) bool {
	return s.Unsubscribe(ctx, memberID).Succeeded()
}

// Subscribe is SubscribeMember with per list outcomes.
func (s *Synchronizer) Subscribe(ctx context.Context, memberID int) Result {
	result := Result{MemberID: memberID}
	member, err := s.loadMember(ctx, subscribeContext, memberID)
	if err != nil {
		result.Err = err
		return result
	}

	lists, err := s.store.MailingLists(ctx, s.siteID)
	if err != nil {
		result.Err = s.fail(ctx, subscribeContext, ErrCodeStore, memberID, "", fmt.Errorf("failed to load mailing lists for site %d %w", s.siteID, err))
		return result
	}

	for _, list := range SelectCandidateLists(lists, member) {
		subscriber, ok := BuildSubscriber(list, member)
		if !ok {
			s.logger.Warn("skipping list, member has no email address",
				zap.Int("member_id", memberID),
				zap.String("list_id", list.ListID))
			continue
		}
		err = s.connector.AddSubscriber(ctx, list.ListID, subscriber, false)
		if err != nil {
			result.Outcomes = append(result.Outcomes, failedOutcome(list.ListID, err))
			result.Err = s.fail(ctx, subscribeContext, ErrCodeRemote, memberID, list.ListID, fmt.Errorf("failed to add subscriber to list %s %w", list.ListID, err))
			return result
		}
		result.Outcomes = append(result.Outcomes, Outcome{ListID: list.ListID, Succeeded: true})
		s.logger.Debug("subscribed member",
			zap.Int("member_id", memberID),
			zap.String("list_id", list.ListID))
	}
	return result
}

// Unsubscribe is UnsubscribeMember with per list outcomes.
// Every configured list is checked regardless of its trigger, and removal is only
// attempted where the member is currently subscribed.
func (s *Synchronizer) Unsubscribe(ctx context.Context, memberID int) Result {
	result := Result{MemberID: memberID}
	member, err := s.loadMember(ctx, unsubscribeContext, memberID)
	if err != nil {
		result.Err = err
		return result
	}

	lists, err := s.store.MailingLists(ctx, s.siteID)
	if err != nil {
		result.Err = s.fail(ctx, unsubscribeContext, ErrCodeStore, memberID, "", fmt.Errorf("failed to load mailing lists for site %d %w", s.siteID, err))
		return result
	}
	if len(lists) == 0 {
		return result
	}

	email := member.Email()
	if email == "" {
		s.logger.Warn("skipping unsubscribe, member has no email address",
			zap.Int("member_id", memberID))
		return result
	}
	for _, list := range lists {
		subscribed, err := s.connector.IsSubscribed(ctx, list.ListID, email)
		if err != nil {
			result.Outcomes = append(result.Outcomes, failedOutcome(list.ListID, err))
			result.Err = s.fail(ctx, unsubscribeContext, ErrCodeRemote, memberID, list.ListID, fmt.Errorf("failed to check subscription on list %s %w", list.ListID, err))
			return result
		}
		if !subscribed {
			result.Outcomes = append(result.Outcomes, Outcome{ListID: list.ListID, Succeeded: true})
			continue
		}
		err = s.connector.RemoveSubscriber(ctx, list.ListID, email)
		if err != nil {
			result.Outcomes = append(result.Outcomes, failedOutcome(list.ListID, err))
			result.Err = s.fail(ctx, unsubscribeContext, ErrCodeRemote, memberID, list.ListID, fmt.Errorf("failed to remove subscriber from list %s %w", list.ListID, err))
			return result
		}
		result.Outcomes = append(result.Outcomes, Outcome{ListID: list.ListID, Succeeded: true})
		s.logger.Debug("unsubscribed member",
			zap.Int("member_id", memberID),
			zap.String("list_id", list.ListID))
	}
	return result
}

func (s *Synchronizer) loadMember(ctx context.Context, errContext string, memberID int) (Member, error) {
	if memberID <= 0 {
		return Member{}, s.fail(ctx, errContext, ErrCodeInvalidMemberID, memberID, "", fmt.Errorf("invalid member id %d", memberID))
	}
	member, err := s.store.Member(ctx, memberID)
	if errors.Is(err, ErrMemberNotFound) {
		return member, s.fail(ctx, errContext, ErrCodeUnknownMember, memberID, "", fmt.Errorf("unknown member %d %w", memberID, err))
	}
	if err != nil {
		return member, s.fail(ctx, errContext, ErrCodeStore, memberID, "", fmt.Errorf("failed to load member %d %w", memberID, err))
	}
	return member, nil
}

// fail reports err exactly once and returns it.
func (s *Synchronizer) fail(ctx context.Context, errContext string, code ErrorCode, memberID int, listID string, err error) error {
	if s.reporter != nil {
		detail := detailFromError(code, memberID, listID, err)
		detail.SiteID = s.siteID
		s.reporter.LogError(ctx, errContext, detail)
	}
	return err
}

func failedOutcome(listID string, err error) Outcome {
	detail := detailFromError(ErrCodeRemote, 0, listID, err)
	return Outcome{
		ListID:  listID,
		Code:    detail.RemoteCode,
		Message: detail.Message,
	}
}
