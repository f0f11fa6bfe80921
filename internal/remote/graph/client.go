// Package graph implements the remote assignment client against the
// Microsoft Graph Intune endpoints
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/remote"
)

const (
	odataAssignment       = "#microsoft.graph.mobileAppAssignment"
	odataGroupTarget      = "#microsoft.graph.groupAssignmentTarget"
	odataTypePrefix       = "#microsoft.graph."
	filterTypeNone        = "none"
	maxErrorBodyBytes     = 64 << 10
	defaultRequestsPerSec = 8
)

// Options configures a Client
type Options struct {
	BaseURL string

	// TokenSource supplies bearer tokens. Token is used through a static
	// source when TokenSource is nil.
	TokenSource oauth2.TokenSource
	Token       string

	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration

	// Transport is the base round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client talks to Graph. All calls share one token bucket, which is the
// process-wide throttle budget
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Compile-time assertions
var (
	_ remote.Client    = (*Client)(nil)
	_ remote.Directory = (*Client)(nil)
)

// New creates a Graph client
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("graph base URL must be set")
	}
	source := opts.TokenSource
	if source == nil {
		if opts.Token == "" {
			return nil, fmt.Errorf("graph access token must be set")
		}
		source = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"})
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSec
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: &http.Client{
			Transport: &oauth2.Transport{Source: source, Base: opts.Transport},
			Timeout:   opts.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}, nil
}

type assignmentList struct {
	Value    []assignment `json:"value"`
	NextLink string       `json:"@odata.nextLink,omitempty"`
}

type assignment struct {
	ODataType string           `json:"@odata.type,omitempty"`
	ID        string           `json:"id,omitempty"`
	Intent    string           `json:"intent"`
	Target    assignmentTarget `json:"target"`
}

type assignmentTarget struct {
	ODataType  string `json:"@odata.type"`
	GroupID    string `json:"groupId,omitempty"`
	FilterID   string `json:"deviceAndAppManagementAssignmentFilterId,omitempty"`
	FilterType string `json:"deviceAndAppManagementAssignmentFilterType,omitempty"`
}

type directoryObject struct {
	ODataType   string `json:"@odata.type,omitempty"`
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchAssignments reads every group assignment of an app, following
// @odata.nextLink pages. All-users, all-devices and exclusion targets are
// not group-first edges and are left out
func (c *Client) FetchAssignments(ctx context.Context, appID string) (model.AppAssignmentState, error) {
	state := model.AppAssignmentState{AppID: appID, Targets: []model.AssignmentTarget{}}
	next := c.assignmentsURL(appID)

	for next != "" {
		var page assignmentList
		if err := c.do(ctx, "fetch", appID, http.MethodGet, next, nil, &page); err != nil {
			return model.AppAssignmentState{}, err
		}
		for _, a := range page.Value {
			if a.Target.ODataType != odataGroupTarget {
				continue
			}
			target, err := toTarget(a)
			if err != nil {
				return model.AppAssignmentState{}, remote.NewError(model.KindValidation, "fetch", appID, err)
			}
			state.Targets = append(state.Targets, target)
		}
		next = page.NextLink
	}

	c.logger.Debug("graph assignments read", "app", appID, "targets", len(state.Targets))
	return state, nil
}

// MutateAssignment sends one add, update or remove. Noop operations send nothing
func (c *Client) MutateAssignment(ctx context.Context, appID string, op model.DiffOperation) error {
	switch op.Kind {
	case model.OpNoop:
		return nil
	case model.OpAdd:
		return c.do(ctx, "add", appID, http.MethodPost, c.assignmentsURL(appID), fromTarget(op.Target), nil)
	case model.OpUpdate:
		id, err := assignmentID(op)
		if err != nil {
			return remote.NewError(model.KindValidation, "update", appID, err)
		}
		return c.do(ctx, "update", appID, http.MethodPatch, c.assignmentsURL(appID)+"/"+url.PathEscape(id), fromTarget(op.Target), nil)
	case model.OpRemove:
		id, err := assignmentID(op)
		if err != nil {
			return remote.NewError(model.KindValidation, "remove", appID, err)
		}
		return c.do(ctx, "remove", appID, http.MethodDelete, c.assignmentsURL(appID)+"/"+url.PathEscape(id), nil, nil)
	default:
		return remote.NewError(model.KindValidation, string(op.Kind), appID, fmt.Errorf("unsupported operation %q", op.Kind))
	}
}

// GetGroup resolves a group's display name
func (c *Client) GetGroup(ctx context.Context, id string) (model.Group, error) {
	var obj directoryObject
	u := c.baseURL + "/groups/" + url.PathEscape(id) + "?$select=id,displayName"
	if err := c.do(ctx, "get group", "", http.MethodGet, u, nil, &obj); err != nil {
		return model.Group{}, err
	}
	return model.Group{ID: obj.ID, DisplayName: obj.DisplayName}, nil
}

// GetApp resolves an app's display name and type
func (c *Client) GetApp(ctx context.Context, id string) (model.App, error) {
	var obj directoryObject
	u := c.baseURL + "/deviceAppManagement/mobileApps/" + url.PathEscape(id)
	if err := c.do(ctx, "get app", id, http.MethodGet, u, nil, &obj); err != nil {
		return model.App{}, err
	}
	return model.App{ID: obj.ID, DisplayName: obj.DisplayName, AppType: strings.TrimPrefix(obj.ODataType, odataTypePrefix)}, nil
}

func (c *Client) assignmentsURL(appID string) string {
	return c.baseURL + "/deviceAppManagement/mobileApps/" + url.PathEscape(appID) + "/assignments"
}

// do sends one request and decodes a JSON response into out when non-nil
func (c *Client) do(ctx context.Context, op, appID, method, u string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return remote.NewError(model.KindValidation, op, appID, fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return remote.NewError(model.KindValidation, op, appID, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return remote.NewError(model.KindTransient, op, appID, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("graph request", "method", method, "url", u, "status", resp.StatusCode)

	if resp.StatusCode >= 300 {
		return classify(op, appID, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remote.NewError(model.KindTransient, op, appID, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// classify maps a non-success response to a typed remote error
func classify(op, appID string, resp *http.Response) error {
	var kind model.ErrorKind
	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized:
		kind = model.KindAuth
	case code == http.StatusForbidden:
		kind = model.KindPermission
	case code == http.StatusNotFound:
		kind = model.KindNotFound
	case code == http.StatusTooManyRequests:
		kind = model.KindThrottled
	case code == http.StatusBadRequest, code == http.StatusConflict, code == http.StatusUnprocessableEntity:
		kind = model.KindValidation
	case code >= 500:
		kind = model.KindTransient
	default:
		kind = model.KindUnknown
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	cause := errors.New(http.StatusText(resp.StatusCode))
	var body errorBody
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		cause = fmt.Errorf("%s: %s", body.Error.Code, body.Error.Message)
	}

	return &remote.Error{
		Kind:       kind,
		Op:         op,
		AppID:      appID,
		StatusCode: resp.StatusCode,
		RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		Err:        cause,
	}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func toTarget(a assignment) (model.AssignmentTarget, error) {
	intent, err := model.ParseIntent(a.Intent)
	if err != nil {
		return model.AssignmentTarget{}, fmt.Errorf("assignment %s: %w", a.ID, err)
	}
	target := model.AssignmentTarget{
		GroupID:      a.Target.GroupID,
		Intent:       intent,
		AssignmentID: a.ID,
	}
	if a.Target.FilterID != "" && a.Target.FilterType != filterTypeNone {
		target.FilterID = a.Target.FilterID
		mode, err := model.ParseFilterMode(a.Target.FilterType)
		if err != nil {
			return model.AssignmentTarget{}, fmt.Errorf("assignment %s: %w", a.ID, err)
		}
		target.FilterMode = mode
	}
	return target, nil
}

func fromTarget(t model.AssignmentTarget) assignment {
	a := assignment{
		ODataType: odataAssignment,
		Intent:    string(t.Intent),
		Target: assignmentTarget{
			ODataType: odataGroupTarget,
			GroupID:   t.GroupID,
		},
	}
	if t.FilterID != "" {
		mode := t.FilterMode
		if mode == "" {
			mode = model.FilterInclude
		}
		a.Target.FilterID = t.FilterID
		a.Target.FilterType = string(mode)
	}
	return a
}

func assignmentID(op model.DiffOperation) (string, error) {
	if op.PreviousTarget != nil && op.PreviousTarget.AssignmentID != "" {
		return op.PreviousTarget.AssignmentID, nil
	}
	if op.Target.AssignmentID != "" {
		return op.Target.AssignmentID, nil
	}
	return "", fmt.Errorf("%s of group %s requires an assignment id", op.Kind, op.Target.GroupID)
}
