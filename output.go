/*
 * Email Sleuth - Input/Output Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// ReadContactsFile loads the batch input: a JSON array of contacts.
func ReadContactsFile(path string) ([]Contact, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var contacts []Contact
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&contacts); err != nil {
		return nil, fmt.Errorf("failed to decode contacts from %s: %w", path, err)
	}
	return contacts, nil
}

// WriteResults writes the full result array as indented JSON.
func WriteResults(w io.Writer, results []ContactResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

// WriteResultsFile writes the result array to a file, creating it fresh.
func WriteResultsFile(path string, results []ContactResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer file.Close()
	return WriteResults(file, results)
}

// PrintContactSummary renders one result for single-contact mode.
func PrintContactSummary(result ContactResult) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Println("------- Email Sleuth Result -------")
	bold.Printf("Contact: %s @ %s\n", result.ContactInput.DisplayName(), result.ContactInput.Domain)

	switch {
	case result.Skipped:
		yellow.Println("Skipped: input is missing a name or a valid domain.")
	case result.Error != nil:
		red.Printf("Error: %s\n", *result.Error)
	case result.Email != nil:
		green.Printf("Best email: %s (confidence %d/10)\n", *result.Email, result.ConfidenceScore)
	default:
		yellow.Println("No email met the confidence threshold.")
	}

	if len(result.FoundEmails) > 0 {
		fmt.Println("Candidates:")
		for _, c := range result.FoundEmails {
			status := "inconclusive"
			if c.VerificationStatus != nil {
				if *c.VerificationStatus {
					status = "exists"
				} else {
					status = "does not exist"
				}
			}
			marker := " "
			if result.Email != nil && c.Email == *result.Email {
				marker = "*"
			}
			fmt.Printf("  %s %-40s %2d/10  %-8s generic=%-5t %s\n",
				marker, c.Email, c.Confidence, c.Source, c.IsGeneric, status)
			if c.VerificationMessage != "" {
				fmt.Printf("      %s\n", c.VerificationMessage)
			}
		}
	}
	if len(result.MethodsUsed) > 0 {
		fmt.Printf("Methods used: %v\n", result.MethodsUsed)
	}
	fmt.Println("-----------------------------------")
}

// PrintBatchBanner renders the final batch statistics.
func PrintBatchBanner(results []ContactResult, elapsedSeconds float64) {
	var found, skipped, failed int
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case r.Error != nil:
			failed++
		case r.Email != nil:
			found++
		}
	}
	green := color.New(color.FgGreen, color.Bold)

	fmt.Println("================================================================================")
	green.Println("✅ EMAIL FINDING COMPLETE")
	fmt.Println("================================================================================")
	fmt.Printf("📊 Total Contacts: %d\n", len(results))
	fmt.Printf("📧 Emails Found: %d | ⏭️  Skipped: %d | ❌ Failed: %d\n", found, skipped, failed)
	if elapsedSeconds > 0 {
		fmt.Printf("⏱️  Total Time: %.1fs | ⚡ Rate: %.2f contacts/s\n", elapsedSeconds, float64(len(results))/elapsedSeconds)
	}
	fmt.Println("================================================================================")
}
