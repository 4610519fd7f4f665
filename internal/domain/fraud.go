package domain

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type RecommendedAction string

const (
	ActionApprove                RecommendedAction = "approve"
	ActionAdditionalVerification RecommendedAction = "additional_verification"
	ActionManualReview           RecommendedAction = "manual_review"
	ActionBlockTransaction       RecommendedAction = "block_transaction"
)

const (
	IndicatorVelocityCountHour     = "velocity_count_hour"
	IndicatorVelocityCountDay      = "velocity_count_day"
	IndicatorVelocityAmountHour    = "velocity_amount_hour"
	IndicatorVelocityAmountDay     = "velocity_amount_day"
	IndicatorHighAmount            = "high_amount"
	IndicatorSuspiciousAmount      = "suspicious_amount"
	IndicatorRestrictedCountry     = "restricted_country"
	IndicatorHighRiskRegion        = "high_risk_region"
	IndicatorNewCustomerHighAmount = "new_customer_high_amount"
	IndicatorCardTesting           = "card_testing"
)

type FraudIndicator struct {
	Type        string    `json:"type"`
	Severity    Severity  `json:"severity"`
	Score       int       `json:"score"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

// FraudAnalysis is the composite verdict for one transaction. Warnings name
// rule families that could not be evaluated.
type FraudAnalysis struct {
	TransactionID     string            `json:"transaction_id"`
	RiskScore         int               `json:"risk_score"`
	RiskLevel         RiskLevel         `json:"risk_level"`
	Indicators        []FraudIndicator  `json:"indicators"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	AnalyzedAt        time.Time         `json:"analyzed_at"`
	Warnings          []string          `json:"warnings,omitempty"`
}

// PaymentAttempt is a transaction about to be submitted to a provider,
// together with the context the fraud rules need.
type PaymentAttempt struct {
	Transaction TransactionRecord `json:"transaction"`
	CustomerID  string            `json:"customer_id"`
	IPAddress   string            `json:"ip_address,omitempty"`
	Country     string            `json:"country,omitempty"`
}
