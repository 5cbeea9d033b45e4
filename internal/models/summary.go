package models

import (
	"encoding/json"
	"strings"
)

// Summary is the typed slim projection of a study, used where a relational
// shape is needed (the Postgres loader, the sample listing). It covers the
// same ground as the registry's slim field list; everything else stays in the
// raw payload.
type Summary struct {
	NCTID         string   `json:"nct_id"`
	BriefTitle    string   `json:"brief_title"`
	OverallStatus string   `json:"overall_status"`
	StudyType     string   `json:"study_type"`
	Phases        []string `json:"phases"`
	Conditions    []string `json:"conditions"`
	Interventions []string `json:"interventions"`
	WhyStopped    string   `json:"why_stopped"`
	StartDate     string   `json:"start_date"`      // "November 1, 2023" or "May 1984"
	StartDateType string   `json:"start_date_type"` // "ACTUAL" or "ESTIMATED"
}

type summaryDoc struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID      string `json:"nctId"`
			BriefTitle string `json:"briefTitle"`
		} `json:"identificationModule"`
		StatusModule struct {
			OverallStatus   string `json:"overallStatus"`
			WhyStopped      string `json:"whyStopped"`
			StartDateStruct struct {
				Date string `json:"date"`
				Type string `json:"type"`
			} `json:"startDateStruct"`
		} `json:"statusModule"`
		DesignModule struct {
			StudyType string   `json:"studyType"`
			Phases    []string `json:"phases"`
		} `json:"designModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
		ArmsInterventionsModule struct {
			Interventions []struct {
				Name string `json:"name"`
			} `json:"interventions"`
		} `json:"armsInterventionsModule"`
	} `json:"protocolSection"`
}

// Summarize extracts the typed projection from a raw study.
func Summarize(s Study) (Summary, error) {
	var doc summaryDoc
	if err := json.Unmarshal(s, &doc); err != nil {
		return Summary{}, err
	}

	ps := doc.ProtocolSection
	sum := Summary{
		NCTID:         ps.IdentificationModule.NCTID,
		BriefTitle:    ps.IdentificationModule.BriefTitle,
		OverallStatus: ps.StatusModule.OverallStatus,
		StudyType:     ps.DesignModule.StudyType,
		Phases:        ps.DesignModule.Phases,
		Conditions:    ps.ConditionsModule.Conditions,
		WhyStopped:    ps.StatusModule.WhyStopped,
		StartDate:     ps.StatusModule.StartDateStruct.Date,
		StartDateType: ps.StatusModule.StartDateStruct.Type,
	}
	for _, iv := range ps.ArmsInterventionsModule.Interventions {
		if name := strings.TrimSpace(iv.Name); name != "" {
			sum.Interventions = append(sum.Interventions, name)
		}
	}
	return sum, nil
}

// Phase flattens the phase list into a single display value.
func (s Summary) Phase() string {
	return strings.Join(s.Phases, "/")
}
