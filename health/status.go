package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360/semrete/component"
	"github.com/c360/semrete/topology"
)

// Status levels
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health of a run or one of its components
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries the counters a status was judged on
type Metrics struct {
	Uptime     time.Duration `json:"uptime,omitempty"`
	ErrorCount int           `json:"error_count,omitempty"`
	Facts      int64         `json:"facts,omitempty"`
	Derived    int64         `json:"derived,omitempty"`
	OpenTrees  int           `json:"open_trees,omitempty"`
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

func newStatus(component, level, message string) Status {
	return Status{
		Component: component,
		Healthy:   level == StatusHealthy,
		Status:    level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// sanitizeErrorMessage strips URLs, paths, addresses and credentials so
// status reports can be served without leaking deployment details
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}
	// URLs go first since they contain paths and ports
	s := urlRegex.ReplaceAllString(err, "[URL]")
	s = unixPathRegex.ReplaceAllString(s, "[PATH]")
	s = ipAddrRegex.ReplaceAllString(s, "[IP]")
	s = portRegex.ReplaceAllString(s, "[PORT]")
	return credentialRegex.ReplaceAllString(s, "[REDACTED]")
}

// FromComponentHealth converts a source or sink health snapshot. A component
// that has recorded errors but is still healthy is degraded.
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	var st Status
	switch {
	case !ch.Healthy:
		st = newStatus(name, StatusUnhealthy, sanitizeErrorMessage(ch.LastError))
	case ch.ErrorCount > 0:
		st = newStatus(name, StatusDegraded, sanitizeErrorMessage(ch.LastError))
	default:
		st = newStatus(name, StatusHealthy, "Component healthy")
	}
	st.Metrics = &Metrics{Uptime: ch.Uptime, ErrorCount: ch.ErrorCount}
	return st
}

// FromRun judges a run snapshot. Failed runs are unhealthy. Ill-formed
// consequents and node failures degrade a run that is otherwise healthy.
func FromRun(rs topology.RunStatus) Status {
	var subs []Status
	if rs.Source != nil {
		subs = append(subs, FromComponentHealth("source", *rs.Source))
	}
	if rs.Sink != nil {
		subs = append(subs, FromComponentHealth("sink", *rs.Sink))
	}

	var st Status
	switch rs.State {
	case component.StateFailed:
		st = newStatus(rs.Name, StatusUnhealthy, sanitizeErrorMessage(rs.Error))
	default:
		agg := Aggregate(rs.Name, subs)
		level := agg.Status
		if level == StatusHealthy && (rs.IllFormed > 0 || rs.NodeFailures > 0) {
			level = StatusDegraded
		}
		st = newStatus(rs.Name, level, "Run "+strings.ToLower(rs.State.String()))
	}

	st.SubStatuses = subs
	st.Metrics = &Metrics{
		Facts:     rs.FactsIngested,
		Derived:   rs.Derived,
		OpenTrees: rs.OpenTrees,
	}
	if !rs.Started.IsZero() {
		end := rs.Finished
		if end.IsZero() {
			end = time.Now()
		}
		st.Metrics.Uptime = end.Sub(rs.Started)
	}
	return st
}

// Aggregate combines sub-statuses: any unhealthy makes the whole unhealthy,
// otherwise any degraded makes it degraded
func Aggregate(component string, subStatuses []Status) Status {
	level := StatusHealthy
	message := "All sub-components are healthy"
	for _, sub := range subStatuses {
		if sub.IsUnhealthy() {
			level = StatusUnhealthy
			message = "One or more sub-components are unhealthy"
			break
		}
		if sub.IsDegraded() {
			level = StatusDegraded
			message = "One or more sub-components are degraded"
		}
	}

	st := newStatus(component, level, message)
	if len(subStatuses) > 0 {
		st.SubStatuses = append([]Status(nil), subStatuses...)
	}
	return st
}
