package stream

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

// --- getStringAttr Tests ---

func TestGetStringAttr(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"name":    events.NewStringAttribute("test-value"),
		"unicode": events.NewStringAttribute("日本語テスト"),
		"empty":   events.NewStringAttribute(""),
		"seq":     events.NewNumberAttribute("42"),
		"flag":    events.NewBooleanAttribute(true),
		"data":    events.NewBinaryAttribute([]byte{0x01}),
	}

	tests := []struct {
		key      string
		expected string
	}{
		{"name", "test-value"},
		{"unicode", "日本語テスト"},
		{"empty", ""},
		{"seq", ""},
		{"flag", ""},
		{"data", ""},
		{"missing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := getStringAttr(image, tt.key); got != tt.expected {
				t.Errorf("getStringAttr(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}

func TestGetStringAttr_NilImage(t *testing.T) {
	var image map[string]events.DynamoDBAttributeValue

	if result := getStringAttr(image, "name"); result != "" {
		t.Errorf("expected empty string for nil image, got %q", result)
	}
}

// --- getNumberAttr Tests ---

func TestGetNumberAttr(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"ttl":      events.NewNumberAttribute("1700000000"),
		"zero":     events.NewNumberAttribute("0"),
		"negative": events.NewNumberAttribute("-5"),
		"text":     events.NewStringAttribute("12"),
		"float":    events.NewNumberAttribute("1.5"),
	}

	tests := []struct {
		key      string
		expected int64
	}{
		{"ttl", 1700000000},
		{"zero", 0},
		{"negative", -5},
		{"text", 0},
		{"float", 0},
		{"missing", 0},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := getNumberAttr(image, tt.key); got != tt.expected {
				t.Errorf("getNumberAttr(%q) = %d, want %d", tt.key, got, tt.expected)
			}
		})
	}
}

// --- tableFromARN Tests ---

func TestTableFromARN(t *testing.T) {
	tests := []struct {
		arn      string
		expected string
	}{
		{"arn:aws:dynamodb:us-east-1:123456789012:table/Author/stream/2024-01-01T00:00:00.000", "Author"},
		{"arn:aws:dynamodb:eu-west-1:123456789012:table/Author~Book/stream/2024-01-01T00:00:00.000", "Author~Book"},
		{"arn:aws:dynamodb:us-east-1:123456789012:table/Image", "Image"},
		{"arn:aws:sqs:us-east-1:123456789012:queue", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tableFromARN(tt.arn); got != tt.expected {
				t.Errorf("tableFromARN(%q) = %q, want %q", tt.arn, got, tt.expected)
			}
		})
	}
}

// --- isTTLExpiry Tests ---

func TestIsTTLExpiry(t *testing.T) {
	tests := []struct {
		name     string
		identity *events.DynamoDBUserIdentity
		expected bool
	}{
		{"no identity", nil, false},
		{"ttl service", &events.DynamoDBUserIdentity{Type: "Service", PrincipalID: "dynamodb.amazonaws.com"}, true},
		{"other service", &events.DynamoDBUserIdentity{Type: "Service", PrincipalID: "lambda.amazonaws.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := events.DynamoDBEventRecord{EventName: "REMOVE", UserIdentity: tt.identity}
			if got := isTTLExpiry(record); got != tt.expected {
				t.Errorf("isTTLExpiry() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// --- Benchmarks ---

func BenchmarkGetStringAttr(b *testing.B) {
	image := map[string]events.DynamoDBAttributeValue{
		"id": events.NewStringAttribute("a1"),
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		getStringAttr(image, "id")
	}
}

func BenchmarkTableFromARN(b *testing.B) {
	arn := "arn:aws:dynamodb:us-east-1:123456789012:table/Author/stream/2024-01-01T00:00:00.000"
	for i := 0; i < b.N; i++ {
		tableFromARN(arn)
	}
}
