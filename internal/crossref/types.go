package crossref

// Wire types for the Crossref REST API. Only the fields the import
// pipeline reads are declared; everything else in the payload is
// ignored during decoding.

// Date is the Crossref date representation used across the Work type.
type Date struct {
	DateParts [][]int `json:"date-parts,omitempty"`
	DateTime  string  `json:"date-time,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// WireAuthor is a contributor entry on a work.
type WireAuthor struct {
	Given    string `json:"given,omitempty"`
	Family   string `json:"family,omitempty"`
	Sequence string `json:"sequence,omitempty"`
	ORCID    string `json:"ORCID,omitempty"`
}

// Work is a single bibliographic work as returned under "message".
type Work struct {
	DOI            string       `json:"DOI"`
	URL            string       `json:"URL,omitempty"`
	Type           string       `json:"type,omitempty"`
	Title          []string     `json:"title,omitempty"`
	ContainerTitle []string     `json:"container-title,omitempty"`
	Author         []WireAuthor `json:"author,omitempty"`
	Created        Date         `json:"created"`
	Issued         Date         `json:"issued"`
	Publisher      string       `json:"publisher,omitempty"`
	Volume         string       `json:"volume,omitempty"`
	Issue          string       `json:"issue,omitempty"`
	Page           string       `json:"page,omitempty"`
	ISSN           []string     `json:"ISSN,omitempty"`
}

// workResponse is the envelope for GET /works/{id}.
type workResponse struct {
	Status  string `json:"status"`
	Message Work   `json:"message"`
}

// searchResponse is the envelope for GET /works?query=.
type searchResponse struct {
	Status  string `json:"status"`
	Message struct {
		TotalResults int    `json:"total-results"`
		Items        []Work `json:"items"`
	} `json:"message"`
}
