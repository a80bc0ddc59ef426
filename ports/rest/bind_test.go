package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/ports/rest"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type AssignTicket struct {
	bus.CommandType[bool]

	Ticket   uuid.UUID `json:"ticket"`
	Assignee uuid.UUID `json:"assignee"`
	Priority int       `json:"priority"`
	Labels   []string  `json:"labels"`
	Note     string
}

type SearchTickets struct {
	bus.QueryType[[]string]

	Term string   `json:"term"`
	Page int      `json:"page"`
	Tags []string `json:"tags"`
}

type BindSuite struct {
	suite.Suite
}

func TestBind(t *testing.T) {
	suite.Run(t, new(BindSuite))
}

func (s *BindSuite) context(req *http.Request) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	return c
}

func (s *BindSuite) TestJSONBody() {
	ticket, assignee := uuid.New(), uuid.New()
	body, err := json.Marshal(map[string]interface{}{
		"ticket":   ticket,
		"assignee": assignee.String(),
		"priority": 2,
		"labels":   []string{"billing", "urgent"},
		"NOTE":     "customer called twice",
	})
	s.Require().NoError(err)
	req := httptest.NewRequest(http.MethodPost, "/tickets/assign", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	var cmd AssignTicket
	s.Require().NoError(rest.Bind(s.context(req), &cmd))

	s.Equal(ticket, cmd.Ticket)
	s.Equal(assignee, cmd.Assignee)
	s.Equal(2, cmd.Priority)
	s.Equal([]string{"billing", "urgent"}, cmd.Labels)
	s.Equal("customer called twice", cmd.Note, "untagged fields match by name ignoring case")
}

func (s *BindSuite) TestQueryString() {
	req := httptest.NewRequest(http.MethodGet, "/tickets?term=refund&page=3&tags=open&tags=vip", nil)

	var q SearchTickets
	s.Require().NoError(rest.Bind(s.context(req), &q))

	s.Equal("refund", q.Term)
	s.Equal(3, q.Page)
	s.Equal([]string{"open", "vip"}, q.Tags)
}

func (s *BindSuite) TestSingleQueryValueFillsSlice() {
	req := httptest.NewRequest(http.MethodGet, "/tickets?tags=open", nil)

	var q SearchTickets
	s.Require().NoError(rest.Bind(s.context(req), &q))

	s.Equal([]string{"open"}, q.Tags)
}

func (s *BindSuite) TestForm() {
	form := url.Values{}
	form.Set("term", "late delivery")
	form.Set("page", "2")
	form.Add("tags", "open")
	form.Add("tags", "escalated")
	req := httptest.NewRequest(http.MethodPost, "/tickets/search", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var q SearchTickets
	s.Require().NoError(rest.Bind(s.context(req), &q))

	s.Equal("late delivery", q.Term)
	s.Equal(2, q.Page)
	s.Equal([]string{"open", "escalated"}, q.Tags)
}

func (s *BindSuite) TestURIParametersWin() {
	ticket := uuid.New()
	var cmd AssignTicket
	run := false

	resp := httptest.NewRecorder()
	_, eng := gin.CreateTestContext(resp)
	eng.POST("/tickets/:ticket/priority/:priority", func(c *gin.Context) {
		s.NoError(rest.Bind(c, &cmd))
		run = true
	})
	body, err := json.Marshal(map[string]interface{}{
		"ticket":   uuid.New(),
		"priority": 1,
		"labels":   []string{"billing"},
	})
	s.Require().NoError(err)
	req := httptest.NewRequest(http.MethodPost, "/tickets/"+ticket.String()+"/priority/5?priority=4", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	eng.ServeHTTP(resp, req)

	s.Require().True(run)
	s.Equal(ticket, cmd.Ticket, "the path beats the body")
	s.Equal(5, cmd.Priority, "the path beats the query string")
	s.Equal([]string{"billing"}, cmd.Labels, "body fields the path doesn't name are kept")
}

func (s *BindSuite) TestQueryStringBeatsBody() {
	body, err := json.Marshal(map[string]interface{}{"term": "body", "page": 1})
	s.Require().NoError(err)
	req := httptest.NewRequest(http.MethodPost, "/tickets/search?term=query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	var q SearchTickets
	s.Require().NoError(rest.Bind(s.context(req), &q))

	s.Equal("query", q.Term)
	s.Equal(1, q.Page)
}

func (s *BindSuite) TestMalformedValues() {
	req := httptest.NewRequest(http.MethodGet, "/tickets?ticket=not-a-uuid", nil)
	var cmd AssignTicket
	s.Error(rest.Bind(s.context(req), &cmd))

	req = httptest.NewRequest(http.MethodGet, "/tickets?page=first", nil)
	var q SearchTickets
	s.Error(rest.Bind(s.context(req), &q))
}

func (s *BindSuite) TestRequiresPointer() {
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)

	s.Error(rest.Bind(s.context(req), SearchTickets{}))
}

func (s *BindSuite) TestBindsCataloguedTarget() {
	b, err := bus.New(nil, bus.WithLogger(log.Discard()), bus.Messages(AssignTicket{}, &SearchTickets{}))
	s.Require().NoError(err)
	defer b.Close()

	req := httptest.NewRequest(http.MethodGet, "/tickets?term=refund&page=2", nil)
	target, decoded, ok := b.DecodeTarget("rest_test.SearchTickets")
	s.Require().True(ok)
	s.Require().NoError(rest.Bind(s.context(req), target))

	q, ok := decoded().(*SearchTickets)
	s.Require().True(ok)
	s.Equal("refund", q.Term)
	s.Equal(2, q.Page)
}
