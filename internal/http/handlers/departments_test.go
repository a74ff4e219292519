package handlers

import (
	"strings"
	"testing"
)

func TestReadDepartmentsCSV(t *testing.T) {
	content := "\ufeffID,Name,Description,Contact Email,Contact_Phone\n" +
		"roads-dept,Roads & Infrastructure,Potholes,roads@city.gov,\n" +
		",,,,\n" +
		"water-dept,Water,,water@city.gov,555-0199\n"
	depts, errs := readDepartmentsCSV(strings.NewReader(content))
	if len(errs) > 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(depts) != 2 {
		t.Fatalf("expected 2 departments, got %d", len(depts))
	}
	if depts[0].ContactEmail != "roads@city.gov" || depts[0].ContactPhone != nil {
		t.Fatalf("unexpected first row: %+v", depts[0])
	}
	if depts[1].ContactPhone == nil || *depts[1].ContactPhone != "555-0199" {
		t.Fatalf("expected phone on second row: %+v", depts[1])
	}
}

func TestReadDepartmentsCSVReportsMissingName(t *testing.T) {
	depts, errs := readDepartmentsCSV(strings.NewReader("id,name\nx-dept,\n"))
	if len(depts) != 0 || len(errs) != 1 {
		t.Fatalf("expected one error, got %v (%d rows)", errs, len(depts))
	}
	if !strings.Contains(errs[0], "line 2") {
		t.Fatalf("expected line number in error: %s", errs[0])
	}

	if _, errs := readDepartmentsCSV(strings.NewReader("code,title\n")); len(errs) != 1 {
		t.Fatalf("expected missing column error, got %v", errs)
	}
}
