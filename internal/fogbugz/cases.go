package fogbugz

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/casesync/casesync/internal/types"
)

// searchDateLayout is the date format understood by the edited: search axis.
const searchDateLayout = "1/2/2006"

// Case returns one case, or nil when the search finds nothing.
func (c *Client) Case(ctx context.Context, id int) (*types.Case, error) {
	cases, err := c.search(ctx, strconv.Itoa(id))
	if err != nil {
		return nil, err
	}
	for i := range cases {
		if cases[i].ID == id {
			return &cases[i], nil
		}
	}
	return nil, nil
}

// SearchChangedCases returns the cases of a project edited between since and now.
func (c *Client) SearchChangedCases(ctx context.Context, projectID int, since time.Time) ([]types.Case, error) {
	q := fmt.Sprintf(`project:=%d edited:"%s..%s"`, projectID,
		since.Format(searchDateLayout), time.Now().In(since.Location()).Format(searchDateLayout))
	return c.search(ctx, q)
}

func (c *Client) search(ctx context.Context, q string) ([]types.Case, error) {
	token, err := c.session()
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	params := url.Values{"token": {token}, "q": {q}, "cols": {caseColumns}}
	if err := c.call(ctx, "search", params, &resp); err != nil {
		return nil, err
	}
	out := make([]types.Case, 0, len(resp.Cases))
	for _, x := range resp.Cases {
		out = append(out, x.toCase())
	}
	return out, nil
}

// CreateCase opens a new case. Unset and empty fields are not sent.
func (c *Client) CreateCase(ctx context.Context, in *types.Case) (*types.Case, error) {
	token, err := c.session()
	if err != nil {
		return nil, err
	}
	params := url.Values{"token": {token}}
	setString(params, "sTitle", in.Title)
	setString(params, "sEvent", in.Description)
	setString(params, "sVersion", in.Version)
	setString(params, "sComputer", in.Computer)
	setInt(params, "ixProject", in.Project)
	setInt(params, "ixArea", in.Area)
	setInt(params, "ixFixFor", in.FixFor)
	setInt(params, "ixCategory", in.Category)
	// Status 0 means closed, which the server derives from the closed assignee.
	if in.Status > 0 {
		setInt(params, "ixStatus", in.Status)
	}
	setInt(params, "ixPersonAssignedTo", in.PersonAssignedTo)
	setInt(params, "ixPriority", in.Priority)
	setInt(params, "hrsCurrEst", in.HrsCurrEst)
	if in.Due != nil {
		params.Set("dtDue", formatTime(*in.Due))
	}

	var resp newCaseResponse
	if err := c.call(ctx, "new", params, &resp); err != nil {
		return nil, err
	}
	id := parseInt(resp.Case.IDAttr)
	if id == types.Unset {
		id = parseInt(resp.Case.ID)
	}
	if id == types.Unset {
		return nil, &APIError{Command: "new", Message: "response did not include a case id"}
	}
	out := *in
	out.ID = id
	return &out, nil
}

// Milestone returns a fix-for, or nil when the server does not know the id.
func (c *Client) Milestone(ctx context.Context, id int) (*types.Milestone, error) {
	token, err := c.session()
	if err != nil {
		return nil, err
	}
	var resp fixForResponse
	params := url.Values{"token": {token}, "ixFixFor": {strconv.Itoa(id)}}
	if err := c.call(ctx, "viewFixFor", params, &resp); err != nil {
		return nil, err
	}
	x := resp.fixFor()
	if x == nil {
		return nil, nil
	}
	m := &types.Milestone{
		ID:         x.id(),
		Project:    parseInt(x.Project),
		Name:       x.Name,
		Assignable: parseBool(x.Assignable),
	}
	if t := parseTime(x.Date); t != nil {
		m.ReleaseDate = *t
	}
	return m, nil
}

// CreateMilestone adds a fix-for to a project.
func (c *Client) CreateMilestone(ctx context.Context, in *types.Milestone) (*types.Milestone, error) {
	token, err := c.session()
	if err != nil {
		return nil, err
	}
	params := url.Values{"token": {token}}
	setInt(params, "ixProject", in.Project)
	setString(params, "sFixFor", in.Name)
	if !in.ReleaseDate.IsZero() {
		params.Set("dtRelease", formatTime(in.ReleaseDate))
	}
	if in.Assignable {
		params.Set("fAssignable", "1")
	} else {
		params.Set("fAssignable", "0")
	}

	var resp fixForResponse
	if err := c.call(ctx, "newFixFor", params, &resp); err != nil {
		return nil, err
	}
	x := resp.fixFor()
	if x == nil || x.id() == types.Unset {
		return nil, &APIError{Command: "newFixFor", Message: "response did not include a fix-for id"}
	}
	out := *in
	out.ID = x.id()
	return &out, nil
}

func setString(v url.Values, key, s string) {
	if s != "" {
		v.Set(key, s)
	}
}

func setInt(v url.Values, key string, n int) {
	if n != types.Unset {
		v.Set(key, strconv.Itoa(n))
	}
}
