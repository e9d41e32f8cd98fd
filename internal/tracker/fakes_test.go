package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/casesync/casesync/internal/mapping"
	"github.com/casesync/casesync/internal/types"
)

// fakeLocal is an in-memory local system. Projects are created on demand.
type fakeLocal struct {
	mu       sync.Mutex
	product  string
	baseURL  string
	reject   bool
	authErr  error
	refused  map[int]bool
	projects map[int]*fakeProject
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{
		product:  "SpiraTest",
		baseURL:  "http://spira.test",
		refused:  make(map[int]bool),
		projects: make(map[int]*fakeProject),
	}
}

func (l *fakeLocal) project(id int) *fakeProject {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.projects[id]
	if !ok {
		p = newFakeProject(id)
		l.projects[id] = p
	}
	return p
}

func (l *fakeLocal) Authenticate(_ context.Context, _, _ string) (bool, error) {
	return !l.reject, l.authErr
}

func (l *fakeLocal) ConnectToProject(_ context.Context, projectID int) (LocalProject, error) {
	if l.refused[projectID] {
		return nil, nil
	}
	return l.project(projectID), nil
}

func (l *fakeLocal) ProductName(context.Context) (string, error) { return l.product, nil }
func (l *fakeLocal) BaseURL(context.Context) (string, error)     { return l.baseURL, nil }

// fakeProject stores incidents, comments and releases of one project.
type fakeProject struct {
	mu         sync.Mutex
	id         int
	nextID     int
	incidents  map[int]types.Incident
	fresh      []int
	comments   map[int][]types.Comment
	releases   []types.Release
	properties []types.CustomProperty
	created    int
	updated    int

	incidentErr    error
	resolutionsErr error
	newErr         error
	onCreate       func() // runs after each stored incident
}

func newFakeProject(id int) *fakeProject {
	return &fakeProject{
		id:        id,
		nextID:    500,
		incidents: make(map[int]types.Incident),
		comments:  make(map[int][]types.Comment),
	}
}

// addNew stores an incident and reports it from NewIncidents.
func (p *fakeProject) addNew(inc types.Incident) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.incidents[*inc.ID] = inc
	p.fresh = append(p.fresh, *inc.ID)
}

// put stores an incident without reporting it as new.
func (p *fakeProject) put(inc types.Incident) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.incidents[*inc.ID] = inc
}

func (p *fakeProject) get(id int) (types.Incident, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inc, ok := p.incidents[id]
	return inc, ok
}

func (p *fakeProject) NewIncidents(_ context.Context, _ time.Time) ([]types.Incident, error) {
	if p.newErr != nil {
		return nil, p.newErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Incident, 0, len(p.fresh))
	for _, id := range p.fresh {
		out = append(out, p.incidents[id])
	}
	return out, nil
}

func (p *fakeProject) Incident(_ context.Context, id int) (*types.Incident, error) {
	if p.incidentErr != nil {
		return nil, p.incidentErr
	}
	inc, ok := p.get(id)
	if !ok {
		return nil, fmt.Errorf("incident %d not found", id)
	}
	return &inc, nil
}

func (p *fakeProject) Resolutions(_ context.Context, incidentID int) ([]types.Comment, error) {
	if p.resolutionsErr != nil {
		return nil, p.resolutionsErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Comment(nil), p.comments[incidentID]...), nil
}

func (p *fakeProject) CreateIncident(_ context.Context, inc *types.Incident) (*types.Incident, error) {
	p.mu.Lock()
	stored := *inc
	stored.ID = types.IntPtr(p.nextID)
	p.nextID++
	p.incidents[*stored.ID] = stored
	p.created++
	p.mu.Unlock()
	if p.onCreate != nil {
		p.onCreate()
	}
	return &stored, nil
}

func (p *fakeProject) UpdateIncident(_ context.Context, inc *types.Incident) error {
	if inc.ID == nil {
		return errors.New("update without id")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.incidents[*inc.ID] = *inc
	p.updated++
	return nil
}

func (p *fakeProject) AddResolutions(_ context.Context, comments []types.Comment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range comments {
		p.comments[c.IncidentID] = append(p.comments[c.IncidentID], c)
	}
	return nil
}

func (p *fakeProject) CreateRelease(_ context.Context, r *types.Release) (*types.Release, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored := *r
	stored.ID = types.IntPtr(p.nextID)
	p.nextID++
	p.releases = append(p.releases, stored)
	return &stored, nil
}

func (p *fakeProject) CustomProperties(_ context.Context, _ types.ArtifactType) ([]types.CustomProperty, error) {
	return p.properties, nil
}

// fakeRemote is an in-memory remote case tracker.
type fakeRemote struct {
	mu          sync.Mutex
	nextID      int
	incompat    bool
	logonErr    error
	loggedOn    bool
	loggedOff   bool
	cases       map[int]types.Case
	created     []types.Case
	milestones  map[int]types.Milestone
	newMiles    []types.Milestone
	searchSince time.Time
	searchErr   error
	searchAll   bool   // ignore the project filter, like a server returning stray cases
	onCreate    func() // runs after each stored case
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nextID:     100,
		cases:      make(map[int]types.Case),
		milestones: make(map[int]types.Milestone),
	}
}

func (r *fakeRemote) put(c types.Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[c.ID] = c
}

func (r *fakeRemote) createdCases() []types.Case {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Case(nil), r.created...)
}

func (r *fakeRemote) VerifyAPI(context.Context) (bool, error) { return !r.incompat, nil }

func (r *fakeRemote) Logon(_ context.Context, _, _ string) error {
	if r.logonErr != nil {
		return r.logonErr
	}
	r.loggedOn = true
	return nil
}

func (r *fakeRemote) Logoff(context.Context) error {
	r.loggedOff = true
	return nil
}

func (r *fakeRemote) Case(_ context.Context, id int) (*types.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %d not found", id)
	}
	return &c, nil
}

func (r *fakeRemote) SearchChangedCases(_ context.Context, projectID int, since time.Time) ([]types.Case, error) {
	if r.searchErr != nil {
		return nil, r.searchErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchSince = since
	var out []types.Case
	for _, c := range r.cases {
		if r.searchAll || c.Project == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRemote) CreateCase(_ context.Context, c *types.Case) (*types.Case, error) {
	r.mu.Lock()
	stored := *c
	stored.ID = r.nextID
	r.nextID++
	r.cases[stored.ID] = stored
	r.created = append(r.created, stored)
	r.mu.Unlock()
	if r.onCreate != nil {
		r.onCreate()
	}
	return &stored, nil
}

func (r *fakeRemote) CreateMilestone(_ context.Context, m *types.Milestone) (*types.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *m
	stored.ID = r.nextID
	r.nextID++
	r.milestones[stored.ID] = stored
	r.newMiles = append(r.newMiles, stored)
	return &stored, nil
}

func (r *fakeRemote) Milestone(_ context.Context, id int) (*types.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.milestones[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// failingStore rejects mapping writes.
type failingStore struct {
	*mapping.MemoryStore
	addErr error
}

func (s *failingStore) AddArtifactMappings(context.Context, types.ArtifactType, []types.DataMapping) error {
	return s.addErr
}
