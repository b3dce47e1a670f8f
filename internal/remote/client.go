package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/logger"
)

const (
	OpSignIn       = "sign_in"
	OpSignUp       = "sign_up"
	OpListAppts    = "list_appointments"
	OpCreateAppt   = "create_appointment"
	OpUpdateStatus = "update_status"
	OpStats        = "get_stats"
	OpDoctors      = "list_doctors"
	OpHealth       = "health"
)

const maxBodyBytes = 8 << 20

// Client talks to the clinic REST backend. It does not retry; callers decide.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Entry
	metrics *Metrics
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) { c.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HealthStatus is whatever the backend reports on /health.
type HealthStatus struct {
	Status    string                `json:"status"`
	Timestamp appointment.Timestamp `json:"timestamp"`
}

// envelope is the {success, ...} wrapper used by the mutating endpoints.
type envelope struct {
	Success     bool                     `json:"success"`
	Message     string                   `json:"message,omitempty"`
	Error       string                   `json:"error,omitempty"`
	User        *appointment.User        `json:"user,omitempty"`
	Appointment *appointment.Appointment `json:"appointment,omitempty"`
}

func (c *Client) SignIn(ctx context.Context, creds appointment.Credentials) (*appointment.User, error) {
	var env envelope
	if err := c.do(ctx, OpSignIn, http.MethodPost, "/auth/signin", nil, creds, &env); err != nil {
		return nil, err
	}
	if err := c.checkEnvelope(OpSignIn, env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, c.malformed(OpSignIn, errors.New("response has no user"))
	}
	return env.User, nil
}

func (c *Client) SignUp(ctx context.Context, reg appointment.Registration) (*appointment.User, error) {
	var env envelope
	if err := c.do(ctx, OpSignUp, http.MethodPost, "/auth/signup", nil, reg, &env); err != nil {
		return nil, err
	}
	if err := c.checkEnvelope(OpSignUp, env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, c.malformed(OpSignUp, errors.New("response has no user"))
	}
	return env.User, nil
}

// ListAppointments returns the backend's list for filter. Order is whatever the
// backend returns.
func (c *Client) ListAppointments(ctx context.Context, filter appointment.Filter) ([]appointment.Appointment, error) {
	var appts []appointment.Appointment
	if err := c.do(ctx, OpListAppts, http.MethodGet, "/appointments", filter.Query(), nil, &appts); err != nil {
		return nil, err
	}
	if appts == nil {
		appts = []appointment.Appointment{}
	}
	return appts, nil
}

// CreateAppointment checks in locally and sends nothing when a required
// field is missing or malformed.
func (c *Client) CreateAppointment(ctx context.Context, in appointment.NewAppointment) (*appointment.Appointment, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", OpCreateAppt, err)
	}

	var env envelope
	if err := c.do(ctx, OpCreateAppt, http.MethodPost, "/appointments", nil, in, &env); err != nil {
		return nil, err
	}
	if err := c.checkEnvelope(OpCreateAppt, env); err != nil {
		return nil, err
	}
	if env.Appointment == nil {
		return nil, c.malformed(OpCreateAppt, errors.New("response has no appointment"))
	}
	return env.Appointment, nil
}

func (c *Client) UpdateAppointmentStatus(ctx context.Context, id int64, status appointment.Status) error {
	path := "/appointments/" + strconv.FormatInt(id, 10) + "/status"
	body := map[string]appointment.Status{"status": status}

	var env envelope
	if err := c.do(ctx, OpUpdateStatus, http.MethodPut, path, nil, body, &env); err != nil {
		return err
	}
	return c.checkEnvelope(OpUpdateStatus, env)
}

func (c *Client) GetStats(ctx context.Context) (appointment.Stats, error) {
	var stats appointment.Stats
	if err := c.do(ctx, OpStats, http.MethodGet, "/appointments/stats", nil, nil, &stats); err != nil {
		return appointment.Stats{}, err
	}
	return stats, nil
}

func (c *Client) ListDoctors(ctx context.Context) ([]appointment.Doctor, error) {
	var doctors []appointment.Doctor
	if err := c.do(ctx, OpDoctors, http.MethodGet, "/doctors", nil, nil, &doctors); err != nil {
		return nil, err
	}
	return doctors, nil
}

func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	if err := c.do(ctx, OpHealth, http.MethodGet, "/health", nil, nil, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, op, method, path, query, in, out)
	elapsed := time.Since(start)

	entry := c.log.WithFields(logrus.Fields{
		"op":          op,
		"method":      method,
		"path":        path,
		"duration_ms": elapsed.Milliseconds(),
	})

	if err != nil {
		var re *Error
		outcome := "error"
		if errors.As(err, &re) {
			outcome = re.Kind.String()
			entry = entry.WithField("status", re.StatusCode)
		}
		c.metrics.observe(op, outcome, elapsed)
		entry.WithError(err).Error("api request failed")
		return err
	}

	c.metrics.observe(op, "ok", elapsed)
	entry.Debug("api request ok")
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Kind: KindMalformed, Message: "could not encode request", Err: err}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Op:         op,
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data, resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{
			Op:         op,
			Kind:       KindMalformed,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("could not decode response: %v", err),
			Err:        err,
		}
	}
	return nil
}

func (c *Client) checkEnvelope(op string, env envelope) error {
	if env.Success {
		return nil
	}
	msg := env.Error
	if msg == "" {
		msg = env.Message
	}
	if msg == "" {
		msg = "request was not successful"
	}
	err := &Error{Op: op, Kind: KindServer, StatusCode: http.StatusOK, Message: msg}
	c.log.WithField("op", op).WithError(err).Error("api request rejected")
	return err
}

func (c *Client) malformed(op string, cause error) error {
	err := &Error{Op: op, Kind: KindMalformed, StatusCode: http.StatusOK, Message: cause.Error(), Err: cause}
	c.log.WithField("op", op).WithError(err).Error("api response incomplete")
	return err
}

// errorMessage prefers the body's "error" field, then "message", then a
// generic status line.
func errorMessage(body []byte, status int) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return fmt.Sprintf("HTTP error! status: %d", status)
}
