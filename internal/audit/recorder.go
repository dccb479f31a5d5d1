package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/identity"
	"staffdesk.org/internal/obs"
)

const defaultRecordTimeout = 5 * time.Second

// Recorder appends audit entries on behalf of privileged operations.
// It has no error channel: every failure is logged and counted, then dropped.
type Recorder struct {
	store    Store
	profiles identity.ProfileLookup
	log      *zap.Logger
	timeout  time.Duration

	wg sync.WaitGroup
}

type RecorderOption func(*Recorder)

// WithProfiles sets the email enrichment lookup.
func WithProfiles(p identity.ProfileLookup) RecorderOption {
	return func(r *Recorder) { r.profiles = p }
}

// WithLogger overrides the operational logger.
func WithLogger(l *zap.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// WithTimeout bounds a single record attempt.
func WithTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, log: obs.Logger(), timeout: defaultRecordTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record documents that actorID performed action and returns once the write
// has been attempted. It never fails the caller.
func (r *Recorder) Record(ctx context.Context, actorID, action string, details map[string]any) {
	if r == nil {
		return
	}
	r.record(ctx, actorID, action, maps.Clone(details))
}

// Go is Record without waiting. The write outlives request cancellation;
// pending writes are lost if the process exits before Wait returns.
func (r *Recorder) Go(ctx context.Context, actorID, action string, details map[string]any) {
	if r == nil {
		return
	}
	details = maps.Clone(details)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.record(context.WithoutCancel(ctx), actorID, action, details)
	}()
}

// Wait blocks until detached records finish or ctx is done.
func (r *Recorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) record(ctx context.Context, actorID, action string, details map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(actorID, action, fmt.Errorf("panic: %v", p))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	actorID = strings.TrimSpace(actorID)
	action = strings.TrimSpace(action)
	if actorID == "" || action == "" {
		r.fail(actorID, action, ErrInvalidEntry)
		return
	}

	if details == nil {
		details = map[string]any{}
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		if _, taken := details["request_id"]; !taken {
			details["request_id"] = rid
		}
	}
	if _, err := json.Marshal(details); err != nil {
		r.fail(actorID, action, fmt.Errorf("encode details: %w", err))
		return
	}

	meta := requestMetaFromContext(ctx)
	entry := Entry{
		AdminUID:   actorID,
		AdminEmail: r.email(ctx, actorID),
		Action:     action,
		Details:    details,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}
	saved, err := r.store.Append(ctx, entry)
	if err != nil {
		r.fail(actorID, action, err)
		return
	}
	obs.ObserveAudit(true)
	r.log.Debug("audit recorded",
		zap.String("id", saved.ID),
		zap.String("action", saved.Action),
		zap.String("admin_uid", saved.AdminUID),
	)
}

// email prefers the identity already resolved for this request, then the profile lookup.
func (r *Recorder) email(ctx context.Context, actorID string) string {
	if id, ok := auth.IdentityFromContext(ctx); ok && id.SubjectID == actorID && id.Email != "" {
		return id.Email
	}
	if r.profiles == nil {
		return ""
	}
	email, err := r.profiles.Email(ctx, actorID)
	if err != nil {
		r.log.Debug("audit email lookup failed", zap.String("admin_uid", actorID), zap.Error(err))
		return ""
	}
	return email
}

func (r *Recorder) fail(actorID, action string, err error) {
	obs.ObserveAudit(false)
	r.log.Error("audit record dropped",
		zap.String("admin_uid", actorID),
		zap.String("action", action),
		zap.Error(err),
	)
}
