package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadContactsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	content := `[
		{"first_name": "John", "last_name": "Doe", "domain": "example.com"},
		{"first_name": "Jane", "last_name": "Smith", "domain": "acme.com", "full_name": "Jane A. Smith"}
	]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	contacts, err := ReadContactsFile(path)
	if err != nil {
		t.Fatalf("ReadContactsFile: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("contacts = %d, want 2", len(contacts))
	}
	if contacts[0].FirstName != "John" || contacts[1].FullName != "Jane A. Smith" {
		t.Errorf("contacts parsed wrong: %+v", contacts)
	}
}

func TestReadContactsFileMissing(t *testing.T) {
	if _, err := ReadContactsFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestWriteResultsShape(t *testing.T) {
	results := []ContactResult{{
		ContactInput:    Contact{FirstName: "John", LastName: "Doe", Domain: "example.com"},
		Email:           strPtr("john.doe@example.com"),
		ConfidenceScore: 9,
		FoundEmails: []Candidate{{
			Email:               "john.doe@example.com",
			Confidence:          9,
			Source:              SourcePattern,
			VerificationStatus:  boolPtr(true),
			VerificationMessage: "mx accepted RCPT TO",
		}},
		MethodsUsed: []string{MethodPatternGeneration, MethodSMTPVerification},
		Log:         VerificationLog{},
	}, {
		ContactInput: Contact{Domain: "x.test"},
		FoundEmails:  []Candidate{},
		MethodsUsed:  []string{},
		Log:          VerificationLog{},
		Skipped:      true,
	}}

	var buf bytes.Buffer
	if err := WriteResults(&buf, results); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, field := range []string{
		`"contact_input"`, `"email"`, `"confidence_score"`, `"found_emails"`,
		`"methods_used"`, `"verification_log"`, `"email_finding_skipped"`,
		`"email_finding_error"`, `"verification_status"`, `"is_generic"`,
	} {
		if !strings.Contains(out, field) {
			t.Errorf("output JSON lacks field %s", field)
		}
	}

	// Round-trip: the array stays an array of two entries, nulls intact.
	var parsed []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed length = %d", len(parsed))
	}
	if parsed[1]["email"] != nil {
		t.Errorf("skipped contact email = %v, want null", parsed[1]["email"])
	}
	if parsed[1]["email_finding_skipped"] != true {
		t.Error("email_finding_skipped not true")
	}
	if parsed[1]["email_finding_error"] != nil {
		t.Error("email_finding_error should be null")
	}
}

func TestWriteResultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := WriteResultsFile(path, []ContactResult{}); err != nil {
		t.Fatalf("WriteResultsFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("empty result file = %q, want []", data)
	}
}
