package registry

// Field names accepted by the v2 API. The full list is documented at
// https://clinicaltrials.gov/data-api/about-api/study-data-structure

// DefaultFields is a minimal field list useful for quickly checking the
// registry without pulling full records.
var DefaultFields = []string{
	"NCTId",
	"BriefTitle",
}

// SlimFields covers the trial metadata most consumers need while staying far
// smaller than the full records.
var SlimFields = []string{
	"NCTId",
	"BriefTitle",
	"Condition",
	"ConditionMeshTerm", // name of the disease
	"ConditionMeshId",
	"InterventionName", // name of the drug/vaccine
	"InterventionType",
	"InterventionMeshTerm",
	"InterventionMeshId",
	"StudyType",
	"DesignAllocation",
	"OverallStatus",
	"Phase",
	"WhyStopped",
	"SecondaryIdType",
	"SecondaryId",
	"StartDate",     // Month [day], year: "November 1, 2023" or "May 1984"
	"StartDateType", // "Actual" or "Anticipated"
	"ReferencePMID", // tagged as relevant by the author, not necessarily about the trial
}
