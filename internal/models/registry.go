// internal/models/registry.go
package models

// Records served by the external registry collaborator. The registry owns
// persistence; this system only reads.

type MetricDirection string

const (
	UpIsGood   MetricDirection = "up_is_good"
	DownIsGood MetricDirection = "down_is_good"
)

type KPI struct {
	Name        string          `json:"name"`
	DataProduct string          `json:"data_product"`
	Column      string          `json:"column"`
	Unit        string          `json:"unit,omitempty"`
	Direction   MetricDirection `json:"direction"`
}

type DecisionStyle string

const (
	StyleAnalytical    DecisionStyle = "analytical"
	StyleDirective     DecisionStyle = "directive"
	StyleCollaborative DecisionStyle = "collaborative"
	StyleCautious      DecisionStyle = "cautious"
)

type PrincipalConstraints struct {
	MaxAcceptableRisk *float64 `json:"max_acceptable_risk,omitempty"`
	MaxCost           *float64 `json:"max_cost,omitempty"`
}

type Principal struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Role          string               `json:"role"`
	MonitoredKPIs []string             `json:"monitored_kpis"`
	DecisionStyle DecisionStyle        `json:"decision_style"`
	Constraints   PrincipalConstraints `json:"constraints,omitempty"`
}

type DataProduct struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Table      string   `json:"table"` // warehouse table or search index
	Dimensions []string `json:"dimensions"`
}

type BusinessProcess struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	KPIs []string `json:"kpis"`
}
