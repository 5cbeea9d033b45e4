package models

import "encoding/json"

// Study is a single raw record as returned by the ClinicalTrials.gov v2 API.
// The payload is kept byte-for-byte so the redistributed dump matches what the
// registry served; typed access is limited to the identification header.
type Study json.RawMessage

// studyHeader mirrors the identification part of the v2 study structure.
type studyHeader struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID      string `json:"nctId"`
			BriefTitle string `json:"briefTitle"`
		} `json:"identificationModule"`
	} `json:"protocolSection"`
}

func (s Study) header() studyHeader {
	var h studyHeader
	// Malformed records decode to the zero header; callers treat an empty
	// NCT ID as unidentified rather than failing the whole dump.
	_ = json.Unmarshal(s, &h)
	return h
}

// NCTID returns the registry identifier (e.g. "NCT00841061"), or "" when the
// record carries none.
func (s Study) NCTID() string {
	return s.header().ProtocolSection.IdentificationModule.NCTID
}

// BriefTitle returns the short study title, or "".
func (s Study) BriefTitle() string {
	return s.header().ProtocolSection.IdentificationModule.BriefTitle
}

func (s Study) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

func (s *Study) UnmarshalJSON(data []byte) error {
	*s = append((*s)[:0], data...)
	return nil
}
