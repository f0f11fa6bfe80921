// Package remotetest provides an in-memory assignment service for tests
package remotetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/remote"
)

// Call records one request received by the Service
type Call struct {
	Method string
	AppID  string
	Op     model.DiffOperation
}

// Service is a thread-safe fake of the remote assignment service. It enforces
// the one-target-per-group rule the real service enforces, and lets tests
// inject failures per app and observe call order and concurrency
type Service struct {
	mu       sync.Mutex
	apps     map[string][]model.AssignmentTarget
	groups   map[string]model.Group
	catalog  map[string]model.App
	nextID   int
	calls    []Call
	fetchErr map[string][]error
	mutErr   map[string][]error
	stickyMu map[string]error

	inFlight    int
	maxInFlight int

	// Delay is slept inside every call, after the in-flight counter is raised.
	Delay time.Duration

	// OnMutate, when set, runs before a mutation is applied.
	OnMutate func(appID string, op model.DiffOperation)
}

// Compile-time assertions
var (
	_ remote.Client    = (*Service)(nil)
	_ remote.Directory = (*Service)(nil)
)

// NewService creates an empty service
func NewService() *Service {
	return &Service{
		apps:     make(map[string][]model.AssignmentTarget),
		groups:   make(map[string]model.Group),
		catalog:  make(map[string]model.App),
		fetchErr: make(map[string][]error),
		mutErr:   make(map[string][]error),
		stickyMu: make(map[string]error),
	}
}

// AddApp registers an app, optionally with existing targets
func (s *Service) AddApp(app model.App, targets ...model.AssignmentTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[app.ID] = app
	list := make([]model.AssignmentTarget, 0, len(targets))
	for _, target := range targets {
		if target.AssignmentID == "" {
			target.AssignmentID = s.newIDLocked()
		}
		list = append(list, target)
	}
	s.apps[app.ID] = list
}

// AddGroup registers a group for directory lookups
func (s *Service) AddGroup(group model.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group.ID] = group
}

// FailFetch queues errors returned by successive fetches of appID
func (s *Service) FailFetch(appID string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr[appID] = append(s.fetchErr[appID], errs...)
}

// FailMutate queues errors returned by successive mutations of appID
func (s *Service) FailMutate(appID string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutErr[appID] = append(s.mutErr[appID], errs...)
}

// FailAllMutations makes every mutation of appID return err
func (s *Service) FailAllMutations(appID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stickyMu[appID] = err
}

// State returns a copy of the stored targets of appID
func (s *Service) State(appID string) model.AppAssignmentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.AppAssignmentState{AppID: appID, Targets: append([]model.AssignmentTarget(nil), s.apps[appID]...)}
}

// Calls returns the calls received so far, in arrival order
func (s *Service) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// MutationsFor returns the mutations received for appID, in arrival order
func (s *Service) MutationsFor(appID string) []model.DiffOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []model.DiffOperation
	for _, call := range s.calls {
		if call.Method == "mutate" && call.AppID == appID {
			ops = append(ops, call.Op)
		}
	}
	return ops
}

// MaxInFlight returns the highest number of concurrent calls observed
func (s *Service) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

func (s *Service) FetchAssignments(ctx context.Context, appID string) (model.AppAssignmentState, error) {
	done := s.enter("fetch", appID, model.DiffOperation{})
	defer done()

	if err := s.wait(ctx); err != nil {
		return model.AppAssignmentState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := popErr(s.fetchErr, appID); err != nil {
		return model.AppAssignmentState{}, err
	}
	targets, ok := s.apps[appID]
	if !ok {
		return model.AppAssignmentState{}, remote.NewError(model.KindNotFound, "fetch", appID, fmt.Errorf("app %s does not exist", appID))
	}
	return model.AppAssignmentState{AppID: appID, Targets: append([]model.AssignmentTarget(nil), targets...)}, nil
}

func (s *Service) MutateAssignment(ctx context.Context, appID string, op model.DiffOperation) error {
	done := s.enter("mutate", appID, op)
	defer done()

	if s.OnMutate != nil {
		s.OnMutate(appID, op)
	}
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.stickyMu[appID]; ok {
		return err
	}
	if err := popErr(s.mutErr, appID); err != nil {
		return err
	}
	targets, ok := s.apps[appID]
	if !ok {
		return remote.NewError(model.KindNotFound, "mutate", appID, fmt.Errorf("app %s does not exist", appID))
	}

	switch op.Kind {
	case model.OpAdd:
		for _, existing := range targets {
			if existing.GroupID == op.Target.GroupID {
				return remote.NewError(model.KindValidation, "mutate", appID,
					fmt.Errorf("group %s already has an assignment", op.Target.GroupID))
			}
		}
		target := op.Target
		target.AssignmentID = s.newIDLocked()
		s.apps[appID] = append(targets, target)
		return nil
	case model.OpUpdate, model.OpRemove:
		if op.PreviousTarget == nil || op.PreviousTarget.AssignmentID == "" {
			return remote.NewError(model.KindValidation, "mutate", appID, fmt.Errorf("%s requires an assignment id", op.Kind))
		}
		for i, existing := range targets {
			if existing.AssignmentID != op.PreviousTarget.AssignmentID {
				continue
			}
			if op.Kind == model.OpRemove {
				s.apps[appID] = append(targets[:i:i], targets[i+1:]...)
				return nil
			}
			updated := op.Target
			updated.AssignmentID = existing.AssignmentID
			targets[i] = updated
			return nil
		}
		return remote.NewError(model.KindNotFound, "mutate", appID,
			fmt.Errorf("assignment %s does not exist", op.PreviousTarget.AssignmentID))
	default:
		return remote.NewError(model.KindValidation, "mutate", appID, fmt.Errorf("unsupported operation %q", op.Kind))
	}
}

func (s *Service) GetGroup(_ context.Context, id string) (model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[id]
	if !ok {
		return model.Group{}, remote.NewError(model.KindNotFound, "get group", "", fmt.Errorf("group %s does not exist", id))
	}
	return group, nil
}

func (s *Service) GetApp(_ context.Context, id string) (model.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.catalog[id]
	if !ok {
		return model.App{}, remote.NewError(model.KindNotFound, "get app", id, fmt.Errorf("app %s does not exist", id))
	}
	return app, nil
}

func (s *Service) enter(method, appID string, op model.DiffOperation) func() {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, AppID: appID, Op: op})
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}
}

func (s *Service) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) newIDLocked() string {
	s.nextID++
	return fmt.Sprintf("asg-%d", s.nextID)
}

func popErr(queue map[string][]error, appID string) error {
	errs := queue[appID]
	if len(errs) == 0 {
		return nil
	}
	queue[appID] = errs[1:]
	return errs[0]
}
