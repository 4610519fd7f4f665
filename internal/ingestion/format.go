package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/brainsait/reconciler/internal/domain"
)

type Format string

const (
	FormatStripeJSON Format = "stripe_json"
	FormatPayPalJSON Format = "paypal_json"
	FormatMadaCSV    Format = "mada_csv"
	FormatSTCPayCSV  Format = "stcpay_csv"
)

// Parser turns a provider settlement file into provider-side records. It also
// returns the file's batch identifier when the format carries one.
type Parser func(data []byte, provider domain.Provider) ([]domain.TransactionRecord, string, error)

var parsers = map[Format]Parser{
	FormatStripeJSON: ParseStripeJSON,
	FormatPayPalJSON: ParsePayPalJSON,
	FormatMadaCSV:    ParseMadaCSV,
	FormatSTCPayCSV:  ParseSTCPayCSV,
}

// DefaultFormat is the report layout each provider sends. Apple Pay settles
// through the acquirer, so it has no default and must be given explicitly.
func DefaultFormat(p domain.Provider) (Format, bool) {
	switch p {
	case domain.ProviderStripe:
		return FormatStripeJSON, true
	case domain.ProviderPayPal:
		return FormatPayPalJSON, true
	case domain.ProviderMada:
		return FormatMadaCSV, true
	case domain.ProviderSTCPay:
		return FormatSTCPayCSV, true
	}
	return "", false
}

// ResolveFormat picks the parser for provider, preferring an explicit format.
func ResolveFormat(p domain.Provider, explicit string) (Format, error) {
	if explicit != "" {
		f := Format(strings.ToLower(strings.TrimSpace(explicit)))
		if _, ok := parsers[f]; !ok {
			return "", &domain.ValidationError{Field: "format", Reason: fmt.Sprintf("unsupported format %q", explicit)}
		}
		return f, nil
	}
	f, ok := DefaultFormat(p)
	if !ok {
		return "", &domain.ValidationError{Field: "format", Reason: fmt.Sprintf("required for provider %s", p)}
	}
	return f, nil
}

// Parse decodes data with the parser registered for format.
func Parse(format Format, data []byte, provider domain.Provider) ([]domain.TransactionRecord, string, error) {
	parse, ok := parsers[format]
	if !ok {
		return nil, "", fmt.Errorf("unsupported format: %s", format)
	}
	return parse(data, provider)
}

func recordID(p domain.Provider, txnID string) string {
	return fmt.Sprintf("%s:%s", p, txnID)
}

// riyadh is used for report timestamps that carry no offset.
var riyadh = time.FixedZone("AST", 3*60*60)

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, riyadh); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
