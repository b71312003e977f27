package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/prior-auth/paw-app/log"
	"github.com/prior-auth/paw-app/paw/models"
)

const (
	StatusPassed      = "passed"
	StatusFailed      = "failed"
	StatusNeedsReview = "needs_review"
)

var (
	icd10Pattern = regexp.MustCompile(`^[A-TV-Z][0-9][0-9A-Z](\.[0-9A-Z]{1,4})?$`)
	hcpcsPattern = regexp.MustCompile(`^([A-Z][0-9]{4}|[0-9]{5})$`)
	npiPattern   = regexp.MustCompile(`^[0-9]{10}$`)
)

// CheckResult is the outcome of one validation check.
type CheckResult struct {
	Check  string `json:"check"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report aggregates the results of all checks run against a case.
type Report struct {
	CaseID  string        `json:"case_id"`
	Overall string        `json:"overall"`
	Results []CheckResult `json:"results"`
}

type checkFunc func(c *models.Case) CheckResult

// ValidateCase runs the eligibility checks concurrently and aggregates their
// outcomes. A check that panics degrades to needs_review instead of failing
// the whole report.
func ValidateCase(ctx context.Context, c *models.Case) *Report {
	checks := []struct {
		name string
		fn   checkFunc
	}{
		{"prescriber_npi", checkNPI},
		{"diagnosis_codes", checkDiagnosisCodes},
		{"procedure_code", checkProcedureCode},
		{"coverage_criteria", checkCoverageCriteria},
	}

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, chk := range checks {
		wg.Add(1)
		go func(i int, name string, fn checkFunc) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.API.Errorf("validation check %s panicked: %v", name, r)
					results[i] = CheckResult{
						Check:  name,
						Status: StatusNeedsReview,
						Detail: "check could not be completed",
					}
				}
			}()
			results[i] = fn(c)
		}(i, chk.name, chk.fn)
	}
	wg.Wait()

	report := &Report{CaseID: c.ID, Overall: StatusPassed, Results: results}
	for _, r := range results {
		if r.Status == StatusFailed {
			report.Overall = StatusFailed
			break
		}
		if r.Status == StatusNeedsReview {
			report.Overall = StatusNeedsReview
		}
	}
	if err := ctx.Err(); err != nil {
		report.Overall = StatusNeedsReview
	}
	return report
}

// checkNPI validates the prescriber's NPI with the Luhn checksum computed
// over the number prefixed with the standard 80840 issuer identifier.
func checkNPI(c *models.Case) CheckResult {
	npi := c.Prescriber.NPI
	if !npiPattern.MatchString(npi) {
		return CheckResult{
			Check:  "prescriber_npi",
			Status: StatusFailed,
			Detail: fmt.Sprintf("NPI %q is not a 10-digit number", npi),
		}
	}
	if !luhnValid("80840" + npi) {
		return CheckResult{
			Check:  "prescriber_npi",
			Status: StatusFailed,
			Detail: fmt.Sprintf("NPI %s failed checksum validation", npi),
		}
	}
	return CheckResult{Check: "prescriber_npi", Status: StatusPassed}
}

func checkDiagnosisCodes(c *models.Case) CheckResult {
	codes := make([]string, 0, len(c.Patient.Diagnoses)+len(c.Medication.DiagnosisCodes))
	for _, d := range c.Patient.Diagnoses {
		codes = append(codes, d.ICD10Code)
	}
	codes = append(codes, c.Medication.DiagnosisCodes...)

	if len(codes) == 0 {
		return CheckResult{
			Check:  "diagnosis_codes",
			Status: StatusNeedsReview,
			Detail: "no diagnosis codes on case",
		}
	}
	var invalid []string
	for _, code := range codes {
		if !icd10Pattern.MatchString(strings.ToUpper(code)) {
			invalid = append(invalid, code)
		}
	}
	if len(invalid) > 0 {
		return CheckResult{
			Check:  "diagnosis_codes",
			Status: StatusFailed,
			Detail: fmt.Sprintf("invalid ICD-10 code(s): %s", strings.Join(invalid, ", ")),
		}
	}
	return CheckResult{Check: "diagnosis_codes", Status: StatusPassed}
}

func checkProcedureCode(c *models.Case) CheckResult {
	code := c.Medication.HCPCSCode
	if code == "" {
		return CheckResult{
			Check:  "procedure_code",
			Status: StatusNeedsReview,
			Detail: "medication has no HCPCS code",
		}
	}
	if !hcpcsPattern.MatchString(strings.ToUpper(code)) {
		return CheckResult{
			Check:  "procedure_code",
			Status: StatusFailed,
			Detail: fmt.Sprintf("code %q is not a valid HCPCS or CPT format", code),
		}
	}
	return CheckResult{Check: "procedure_code", Status: StatusPassed}
}

// checkCoverageCriteria reviews the structured policy criteria attached to
// the case. Unmet criteria are not an outright failure; a reviewer decides.
func checkCoverageCriteria(c *models.Case) CheckResult {
	if len(c.PolicyCriteria) == 0 {
		return CheckResult{
			Check:  "coverage_criteria",
			Status: StatusNeedsReview,
			Detail: "no policy criteria evaluated for this case",
		}
	}
	var unmet []string
	for _, crit := range c.PolicyCriteria {
		if !crit.Met {
			unmet = append(unmet, crit.Name)
		}
	}
	if len(unmet) > 0 {
		return CheckResult{
			Check:  "coverage_criteria",
			Status: StatusNeedsReview,
			Detail: fmt.Sprintf("unmet criteria: %s", strings.Join(unmet, ", ")),
		}
	}
	return CheckResult{Check: "coverage_criteria", Status: StatusPassed}
}

func luhnValid(digits string) bool {
	sum := 0
	double := len(digits)%2 == 0
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
		d := int(r - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
