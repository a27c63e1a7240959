package api

import (
	"net/http"
)

type schemaTable struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

type schemaResponse struct {
	Tables        []schemaTable `json:"tables"`
	CanonicalText string        `json:"canonical_text"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	desc, err := deps.SchemaSource.Describe(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_UNAVAILABLE", err.Error(), true, nil)
		return
	}

	tables := make([]schemaTable, 0, len(desc.Tables))
	for _, table := range desc.Tables {
		tables = append(tables, schemaTable{Name: table.Name, Columns: table.Columns})
	}
	writeJSON(w, http.StatusOK, schemaResponse{
		Tables:        tables,
		CanonicalText: desc.CanonicalText(),
	})
}
