package server

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"aeo-score-service/internal/rules"
)

// evaluateRequest is the POST /v1/evaluate body. Setting all_rule_sets
// evaluates the subject against every loaded rule set instead of one.
type evaluateRequest struct {
	RuleSet     string        `json:"rule_set,omitempty"`
	AllRuleSets bool          `json:"all_rule_sets,omitempty"`
	Tier        string        `json:"tier,omitempty"`
	Subject     rules.Subject `json:"subject"`
}

// evaluateResponse wraps a report with a traceable request id. Exactly one
// of report and reports is set, matching the request mode.
type evaluateResponse struct {
	RequestID string          `json:"request_id"`
	Report    *rules.Report   `json:"report,omitempty"`
	Reports   []*rules.Report `json:"reports,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Subject) == 0 {
		writeError(w, http.StatusBadRequest, "subject is required and must be a non-empty object")
		return
	}

	tier := s.config.DefaultTier
	switch req.Tier {
	case "":
	case string(rules.TierFree):
		tier = rules.TierFree
	case string(rules.TierPremium):
		tier = rules.TierPremium
	default:
		writeError(w, http.StatusBadRequest, "unknown tier: "+req.Tier)
		return
	}

	requestID := uuid.New().String()

	if req.AllRuleSets {
		if req.RuleSet != "" {
			writeError(w, http.StatusBadRequest, "rule_set and all_rule_sets are mutually exclusive")
			return
		}
		reports := s.engine.EvaluateAll(req.Subject, tier)
		if len(reports) == 0 {
			writeError(w, http.StatusNotFound, "no rule sets are loaded")
			return
		}
		for _, report := range reports {
			s.metrics.ObserveReport(report)
		}
		slog.Info("evaluation completed",
			"request_id", requestID,
			"rule_sets", len(reports),
			"tier", string(tier),
		)
		writeJSON(w, http.StatusOK, evaluateResponse{RequestID: requestID, Reports: reports})
		return
	}

	name := req.RuleSet
	if name == "" {
		name = s.config.DefaultRuleSet
	}
	rs, ok := s.store.GetRuleSet(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown rule set: "+name)
		return
	}

	report := s.engine.Evaluate(rs, req.Subject, tier)
	s.metrics.ObserveReport(report)

	slog.Info("evaluation completed",
		"request_id", requestID,
		"rule_set", report.RuleSet,
		"tier", string(report.Tier),
		"score", report.OverallScore,
		"grade", report.Grade,
	)

	writeJSON(w, http.StatusOK, evaluateResponse{RequestID: requestID, Report: report})
}

// ruleSetSummary is one entry in the GET /v1/rulesets listing.
type ruleSetSummary struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Categories  int    `json:"categories"`
	Rules       int    `json:"rules"`
}

func (s *Server) handleListRuleSets(w http.ResponseWriter, r *http.Request) {
	sets := s.store.LoadedRuleSets()
	s.metrics.SetLoadedRuleSets(len(sets))

	summaries := make([]ruleSetSummary, 0, len(sets))
	for _, rs := range sets {
		summaries = append(summaries, summarize(rs))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rs, ok := s.store.GetRuleSet(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown rule set: "+name)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"rule_sets": len(s.store.LoadedRuleSets()),
	})
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>AEO Score Service</title></head>
<body>
<h1>AEO Score Service</h1>
<p>{{len .}} rule set(s) loaded.</p>
<table border="1" cellpadding="6">
<tr><th>Name</th><th>Version</th><th>Categories</th><th>Rules</th></tr>
{{range .}}<tr><td><a href="/v1/rulesets/{{.Name}}">{{.Name}}</a></td><td>{{.Version}}</td><td>{{.Categories}}</td><td>{{.Rules}}</td></tr>
{{end}}
</table>
<p><a href="/metrics">Metrics</a> | <a href="/healthz">Health</a></p>
</body>
</html>
`))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sets := s.store.LoadedRuleSets()
	summaries := make([]ruleSetSummary, 0, len(sets))
	for _, rs := range sets {
		summaries = append(summaries, summarize(rs))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, summaries); err != nil {
		slog.Error("rendering dashboard", "error", err)
	}
}

func summarize(rs *rules.RuleSet) ruleSetSummary {
	ruleCount := 0
	for _, cat := range rs.Categories {
		ruleCount += len(cat.Rules)
	}
	return ruleSetSummary{
		Name:        rs.Meta.Name,
		Version:     rs.Meta.Version,
		Description: rs.Meta.Description,
		Categories:  len(rs.Categories),
		Rules:       ruleCount,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
