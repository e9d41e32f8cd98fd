package fogbugz

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/casesync/casesync/internal/types"
)

// envelope is decoded first from every response to detect errors.
type envelope struct {
	XMLName xml.Name  `xml:"response"`
	Error   *xmlError `xml:"error"`
}

type xmlError struct {
	Code string `xml:"code,attr"`
	Text string `xml:",chardata"`
}

type apiInfo struct {
	XMLName    xml.Name `xml:"response"`
	Version    int      `xml:"version"`
	MinVersion int      `xml:"minversion"`
	URL        string   `xml:"url"`
}

type logonResponse struct {
	XMLName xml.Name `xml:"response"`
	Token   string   `xml:"token"`
}

// caseColumns is the column list requested from search.
const caseColumns = "ixBug,fOpen,sTitle,sLatestTextSummary,ixProject,ixArea,ixPersonOpenedBy," +
	"ixPersonAssignedTo,ixStatus,ixPriority,ixFixFor,sVersion,sComputer,hrsCurrEst," +
	"ixCategory,dtClosed,dtDue,dtLastUpdated"

type searchResponse struct {
	XMLName xml.Name  `xml:"response"`
	Cases   []xmlCase `xml:"cases>case"`
}

type xmlCase struct {
	ID               string `xml:"ixBug,attr"`
	Title            string `xml:"sTitle"`
	Summary          string `xml:"sLatestTextSummary"`
	Project          string `xml:"ixProject"`
	Area             string `xml:"ixArea"`
	PersonOpenedBy   string `xml:"ixPersonOpenedBy"`
	PersonAssignedTo string `xml:"ixPersonAssignedTo"`
	Status           string `xml:"ixStatus"`
	Priority         string `xml:"ixPriority"`
	FixFor           string `xml:"ixFixFor"`
	Version          string `xml:"sVersion"`
	Computer         string `xml:"sComputer"`
	HrsCurrEst       string `xml:"hrsCurrEst"`
	Category         string `xml:"ixCategory"`
	Closed           string `xml:"dtClosed"`
	Due              string `xml:"dtDue"`
	LastUpdated      string `xml:"dtLastUpdated"`
}

func (x xmlCase) toCase() types.Case {
	return types.Case{
		ID:               parseInt(x.ID),
		Project:          parseInt(x.Project),
		Title:            x.Title,
		Description:      x.Summary,
		Status:           parseInt(x.Status),
		Category:         parseInt(x.Category),
		Priority:         parseInt(x.Priority),
		PersonAssignedTo: parseInt(x.PersonAssignedTo),
		PersonOpenedBy:   parseInt(x.PersonOpenedBy),
		FixFor:           parseInt(x.FixFor),
		Area:             parseInt(x.Area),
		HrsCurrEst:       parseHours(x.HrsCurrEst),
		Version:          x.Version,
		Computer:         x.Computer,
		Due:              parseTime(x.Due),
		Closed:           parseTime(x.Closed),
		LastUpdated:      parseTime(x.LastUpdated),
	}
}

// newCaseResponse accepts the id as an attribute or as a child element.
type newCaseResponse struct {
	XMLName xml.Name `xml:"response"`
	Case    struct {
		IDAttr string `xml:"ixBug,attr"`
		ID     string `xml:"ixBug"`
	} `xml:"case"`
}

type xmlFixFor struct {
	IDAttr     string `xml:"ixFixFor,attr"`
	ID         string `xml:"ixFixFor"`
	Name       string `xml:"sFixFor"`
	Project    string `xml:"ixProject"`
	Date       string `xml:"dt"`
	Assignable string `xml:"fAssignable"`
}

func (x *xmlFixFor) id() int {
	if v := parseInt(x.IDAttr); v != types.Unset {
		return v
	}
	return parseInt(x.ID)
}

// fixForResponse covers both the lower-case element returned by viewFixFor and
// the camel-case one returned by newFixFor.
type fixForResponse struct {
	XMLName xml.Name   `xml:"response"`
	Lower   *xmlFixFor `xml:"fixfor"`
	Camel   *xmlFixFor `xml:"fixFor"`
}

func (r *fixForResponse) fixFor() *xmlFixFor {
	if r.Lower != nil {
		return r.Lower
	}
	return r.Camel
}

// parseInt returns types.Unset for empty or non-numeric values.
func parseInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return types.Unset
	}
	return v
}

// parseHours truncates fractional estimates; the API reports hours as decimals.
func parseHours(s string) int {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return types.Unset
	}
	return int(f)
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
