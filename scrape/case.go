package scrape

import "strings"

// CaseDetails is the reduced metadata kept for one case.
type CaseDetails struct {
	DecisionDate      *string  `json:"decision_date"`
	OfficialCitation  *string  `json:"official_citation"`
	CaseName          *string  `json:"case_name"`
	CourtName         *string  `json:"court_name"`
	DocketNumber      *string  `json:"docket_number"`
	PanelOfJudges     []string `json:"panel_of_judges"`
	MajorityAuthor    *string  `json:"majority_author"`
	ConcurrenceAuthor *string  `json:"concurrence_author"`
	DissentAuthor     *string  `json:"dissent_author"`
}

var csvHeader = []string{
	"decision_date",
	"official_citation",
	"case_name",
	"court_name",
	"docket_number",
	"panel_of_judges",
	"majority_author",
	"concurrence_author",
	"dissent_author",
}

func (c CaseDetails) csvRecord() []string {
	return []string{
		deref(c.DecisionDate),
		deref(c.OfficialCitation),
		deref(c.CaseName),
		deref(c.CourtName),
		deref(c.DocketNumber),
		strings.Join(c.PanelOfJudges, "; "),
		deref(c.MajorityAuthor),
		deref(c.ConcurrenceAuthor),
		deref(c.DissentAuthor),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type rawCase struct {
	DecisionDate     *string `json:"decision_date"`
	NameAbbreviation *string `json:"name_abbreviation"`
	DocketNumber     *string `json:"docket_number"`
	Court            struct {
		NameAbbreviation *string `json:"name_abbreviation"`
	} `json:"court"`
	Citations []struct {
		Type string `json:"type"`
		Cite string `json:"cite"`
	} `json:"citations"`
	Casebody struct {
		Judges   []string `json:"judges"`
		Opinions []struct {
			Type   string  `json:"type"`
			Author *string `json:"author"`
		} `json:"opinions"`
	} `json:"casebody"`
}

// details keeps the first official citation and the last author seen for each opinion type.
func (r rawCase) details() CaseDetails {
	d := CaseDetails{
		DecisionDate:  r.DecisionDate,
		CaseName:      r.NameAbbreviation,
		CourtName:     r.Court.NameAbbreviation,
		DocketNumber:  r.DocketNumber,
		PanelOfJudges: r.Casebody.Judges,
	}
	for _, c := range r.Citations {
		if c.Type == "official" {
			cite := c.Cite
			d.OfficialCitation = &cite
			break
		}
	}
	for _, o := range r.Casebody.Opinions {
		switch o.Type {
		case "majority":
			d.MajorityAuthor = o.Author
		case "concurrence":
			d.ConcurrenceAuthor = o.Author
		case "dissent":
			d.DissentAuthor = o.Author
		}
	}
	return d
}
