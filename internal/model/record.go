package model

// Record is a single row of a health-record table. Values are kept as
// strings exactly as read from the cleaning stage; numeric checks parse
// on demand. ID is the input row index and is used to restore output
// order after concurrent processing.
type Record struct {
	ID     int64             `json:"record_id"`
	Values map[string]string `json:"values"`
}

// Get returns the value of a field and whether the field exists.
func (r Record) Get(field string) (string, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Clone returns a deep copy of the record. Records coming out of the
// cleaning stage are treated as immutable, so every stage that needs to
// attach a value works on a copy.
func (r Record) Clone() Record {
	values := make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Record{ID: r.ID, Values: values}
}

// Dataset is an ordered collection of records sharing one column layout.
type Dataset struct {
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.Records)
}

// HasColumn reports whether the dataset declares the given column.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}
