// Package session holds the per-client conversion state and runs the
// idle → validating → converting → done|failed state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"formatconv/contracts"
	"formatconv/feedback"
	"formatconv/files_manager"
	"formatconv/logger"
	"formatconv/publisher"
	"formatconv/selector"
)

type State int

const (
	StateIdle State = iota
	StateValidating
	StateConverting
	StateDone
	StateFailed
)

var stateNames = [...]string{"idle", "validating", "converting", "done", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	ErrBusy    = errors.New("a conversion is already running")
	ErrExpired = errors.New("session expired")
	ErrNoFiles = fmt.Errorf("%w: select at least one file first", contracts.ErrValidation)
)

// Dispatcher routes a resolved pair to one adapter.
type Dispatcher interface {
	Lookup(pair contracts.Pair) (contracts.Converter, error)
}

type Deps struct {
	Dispatcher  Dispatcher
	Publisher   *publisher.Publisher
	Reporter    feedback.Reporter
	MaxFileSize int64
	Now         func() time.Time
}

type Session struct {
	ID   string
	Kind contracts.Kind

	mu             sync.Mutex
	state          State
	pair           contracts.Pair
	mode           contracts.Mode
	selection      *files_manager.Selection
	dispatcher     Dispatcher
	publisher      *publisher.Publisher
	reporter       feedback.Reporter
	lastConversion time.Time
	lastActive     time.Time
	expired        bool
	now            func() time.Time
}

func New(id string, kind contracts.Kind, deps Deps) (*Session, error) {
	policy, err := files_manager.PolicyFor(kind, deps.MaxFileSize)
	if err != nil {
		return nil, err
	}
	if deps.Dispatcher == nil || deps.Publisher == nil {
		return nil, errors.New("session needs a dispatcher and a publisher")
	}
	if deps.Reporter == nil {
		deps.Reporter = feedback.Discard{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		ID:         id,
		Kind:       kind,
		pair:       selector.DefaultPair(kind),
		selection:  files_manager.NewSelection(policy),
		dispatcher: deps.Dispatcher,
		publisher:  deps.Publisher,
		reporter:   deps.Reporter,
		lastActive: deps.Now(),
		now:        deps.Now,
	}, nil
}

func (s *Session) ctx(ctx context.Context) context.Context {
	return logger.WithSessionID(ctx, s.ID)
}

func (s *Session) touchLocked() {
	s.lastActive = s.now()
}

type SelectResult struct {
	Summary  files_manager.Summary     `json:"summary"`
	Rejected []files_manager.Rejection `json:"rejected,omitempty"`
	Pair     contracts.Pair            `json:"pair"`
	Mode     contracts.Mode            `json:"mode,omitempty"`
}

// Select replaces the working set. Rejected files are reported as warnings;
// if nothing is accepted the previous selection stays.
func (s *Session) Select(ctx context.Context, files []contracts.File) (SelectResult, error) {
	ctx = s.ctx(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired {
		return SelectResult{}, ErrExpired
	}
	s.touchLocked()

	if s.state == StateConverting {
		return SelectResult{}, ErrBusy
	}

	var checks []func([]contracts.File) error
	if selector.Inferred(s.Kind) {
		checks = append(checks, func(accepted []contracts.File) error {
			_, err := selector.InferMode(accepted)
			return err
		})
	}

	rejected, err := s.selection.Replace(files, checks...)
	for _, r := range rejected {
		s.reporter.Toast(feedback.LevelWarning, fmt.Sprintf("%s skipped: %s", r.Name, r.Reason))
	}
	if err != nil {
		if errors.Is(err, selector.ErrAmbiguousSelection) {
			s.reporter.Toast(feedback.LevelWarning, "Select either images or PDFs, not both.")
		}
		s.reporter.Status(feedback.LevelError, err.Error())
		logger.Info(ctx, "selection refused", logger.Fields{"offered": len(files), "rejected": len(rejected), "reason": err.Error()})
		return SelectResult{Rejected: rejected, Summary: s.selection.Summary(), Pair: s.pair, Mode: s.mode}, err
	}

	accepted := s.selection.Files()
	if selector.Inferred(s.Kind) {
		s.mode, _ = selector.InferMode(accepted)
	} else {
		s.pair = selector.Resolve(s.Kind, s.pair, accepted)
	}

	sum := s.selection.Summary()
	s.reporter.Status(feedback.LevelInfo, fmt.Sprintf("%d file(s) selected, %s", sum.Count, sum.TotalSize))
	logger.Info(ctx, "selection replaced", logger.Fields{"files": sum.Count, "bytes": sum.TotalBytes, "rejected": len(rejected)})
	return SelectResult{Summary: sum, Rejected: rejected, Pair: s.pair, Mode: s.mode}, nil
}

// SetPair sets the explicit source and target. Empty values keep the
// current side.
func (s *Session) SetPair(from, to string) (contracts.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	pair := s.pair
	if from != "" {
		f, err := contracts.ParseFormat(from)
		if err != nil {
			return s.pair, fmt.Errorf("%w: %v", contracts.ErrValidation, err)
		}
		pair.From = f
	}
	if to != "" {
		f, err := contracts.ParseFormat(to)
		if err != nil {
			return s.pair, fmt.Errorf("%w: %v", contracts.ErrValidation, err)
		}
		pair.To = f
	}
	s.pair = selector.Resolve(s.Kind, pair, s.selection.Files())
	return s.pair, nil
}

func (s *Session) Swap() contracts.Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.pair = selector.Swap(s.Kind, s.pair, s.selection.Files())
	return s.pair
}

// Reset drops the selection and revokes any published result.
func (s *Session) Reset(ctx context.Context) error {
	ctx = s.ctx(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConverting {
		return ErrBusy
	}
	s.touchLocked()
	s.selection.Reset()
	s.publisher.Clear(ctx)
	s.pair = selector.DefaultPair(s.Kind)
	s.mode = contracts.ModeNone
	s.state = StateIdle
	s.reporter.Status(feedback.LevelInfo, "")
	s.reporter.Progress(false, 0, 0)
	return nil
}

type Outcome struct {
	State      State                 `json:"state"`
	Pair       contracts.Pair        `json:"pair"`
	References []publisher.Reference `json:"references,omitempty"`
	Finished   time.Time             `json:"finished,omitempty"`
}

// Submit validates the current selection and options and, if they hold,
// converts through exactly one adapter. A submission while another is
// converting is refused with ErrBusy.
func (s *Session) Submit(ctx context.Context, flags contracts.InputFlags) (Outcome, error) {
	ctx = s.ctx(ctx)

	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return Outcome{State: StateIdle}, ErrExpired
	}
	s.touchLocked()
	if s.state == StateConverting {
		s.mu.Unlock()
		return Outcome{State: StateConverting}, ErrBusy
	}
	s.state = StateValidating
	files := s.selection.Files()
	conv, opts, pair, err := s.validateLocked(flags, files)
	if err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		s.reporter.Status(feedback.LevelError, err.Error())
		logger.Info(ctx, "submission refused", logger.Fields{"reason": err.Error()})
		return Outcome{State: StateIdle, Pair: pair}, err
	}
	s.state = StateConverting
	s.mu.Unlock()

	return s.convert(ctx, conv, files, opts, pair)
}

func (s *Session) validateLocked(flags contracts.InputFlags, files []contracts.File) (contracts.Converter, contracts.Options, contracts.Pair, error) {
	pair := s.pair
	if len(files) == 0 {
		return nil, contracts.Options{}, pair, ErrNoFiles
	}

	if flags.From != "" {
		from, err := contracts.ParseFormat(flags.From)
		if err != nil {
			return nil, contracts.Options{}, pair, fmt.Errorf("%w: source: %v", contracts.ErrValidation, err)
		}
		pair.From = from
	}
	if flags.To == "" {
		flags.To = string(pair.To)
	}
	opts, err := contracts.ParseOptions(flags)
	if err != nil {
		return nil, opts, pair, err
	}
	pair.To = opts.Target

	mode := s.mode
	if selector.Inferred(s.Kind) {
		if mode, err = selector.InferMode(files); err != nil {
			return nil, opts, pair, err
		}
		if pair, err = selector.ModePair(mode, files, opts.Target); err != nil {
			return nil, opts, pair, err
		}
	} else {
		pair = selector.Resolve(s.Kind, pair, files)
	}
	if err := selector.Check(s.Kind, pair); err != nil {
		return nil, opts, pair, err
	}
	opts.Target = pair.To

	conv, err := s.dispatcher.Lookup(pair)
	if err != nil {
		return nil, opts, pair, err
	}
	s.mode = mode
	return conv, opts, pair, nil
}

func (s *Session) convert(ctx context.Context, conv contracts.Converter, files []contracts.File, opts contracts.Options, pair contracts.Pair) (out Outcome, err error) {
	s.reporter.Busy(true)
	s.reporter.Progress(true, 0, len(files))
	s.reporter.Status(feedback.LevelInfo, fmt.Sprintf("Converting %d file(s) to %s…", len(files), pair.To))
	defer func() {
		s.reporter.Busy(false)
		s.reporter.Progress(false, 0, 0)
	}()

	started := s.now()
	logger.Info(ctx, "conversion started", logger.Fields{"adapter": conv.Name(), "pair": pair.String(), "files": len(files)})

	payloads, err := conv.Convert(ctx, files, opts, func(done, total int) {
		s.reporter.Progress(true, done, total)
	})
	var refs []publisher.Reference
	if err == nil {
		refs, err = s.publisher.Publish(ctx, payloads)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if err != nil {
		s.state = StateFailed
		s.publisher.Clear(ctx)
		s.reporter.Status(feedback.LevelError, err.Error())
		s.reporter.Toast(feedback.LevelError, "Conversion failed.")
		logger.Error(ctx, "conversion failed", err, logger.Fields{"adapter": conv.Name(), "pair": pair.String()})
		return Outcome{State: StateFailed, Pair: pair}, err
	}

	s.state = StateDone
	s.lastConversion = s.now()
	s.reporter.Status(feedback.LevelSuccess, fmt.Sprintf("Converted %d file(s) into %d result(s). Last conversion: %s",
		len(files), len(refs), s.lastConversion.Format(time.Kitchen)))
	s.reporter.Toast(feedback.LevelSuccess, "Conversion complete.")
	logger.Info(ctx, "conversion finished", logger.Fields{
		"adapter":  conv.Name(),
		"pair":     pair.String(),
		"results":  len(refs),
		"duration": s.lastConversion.Sub(started).String(),
	})
	return Outcome{State: StateDone, Pair: pair, References: refs, Finished: s.lastConversion}, nil
}

type Snapshot struct {
	ID             string                `json:"id"`
	Kind           contracts.Kind        `json:"kind"`
	State          State                 `json:"state"`
	Pair           contracts.Pair        `json:"pair"`
	Mode           contracts.Mode        `json:"mode,omitempty"`
	Targets        []contracts.Format    `json:"targets"`
	Summary        files_manager.Summary `json:"summary"`
	References     []publisher.Reference `json:"references"`
	LastConversion *time.Time            `json:"last_conversion,omitempty"`
	Feedback       *feedback.Snapshot    `json:"feedback,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:         s.ID,
		Kind:       s.Kind,
		State:      s.state,
		Pair:       s.pair,
		Mode:       s.mode,
		Targets:    selector.Targets(s.Kind, s.pair.From),
		Summary:    s.selection.Summary(),
		References: s.publisher.References(),
	}
	if !s.lastConversion.IsZero() {
		t := s.lastConversion
		snap.LastConversion = &t
	}
	if r, ok := s.reporter.(interface{ Snapshot() feedback.Snapshot }); ok {
		fb := r.Snapshot()
		snap.Feedback = &fb
	}
	return snap
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Policy() files_manager.Policy {
	return s.selection.Policy()
}

// expireIfIdle marks the session expired when it has been idle since
// before cutoff and nothing is converting. Once expired it refuses Select
// and Submit, so nothing new can be published after the sweep revokes it.
func (s *Session) expireIfIdle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired || s.state == StateConverting || !s.lastActive.Before(cutoff) {
		return false
	}
	s.expired = true
	return true
}
