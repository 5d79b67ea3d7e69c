package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"
	"gwi.com/agenda/internal/store"
)

var ErrEmptyQuery = errors.New("query expression must not be empty")

type QuerySyntaxError struct {
	Expression string
	Message    string
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("invalid JMESPath expression %q: %s", e.Expression, e.Message)
}

// QueryService evaluates JMESPath expressions against the whole collection.
type QueryService struct {
	contacts *ContactService
}

func NewQueryService(contacts *ContactService) *QueryService {
	return &QueryService{contacts: contacts}
}

// Query returns whatever the expression projects: a list, an object, a
// scalar or nil when nothing matches.
func (s *QueryService) Query(ctx context.Context, expression string) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, ErrEmptyQuery
	}
	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, &QuerySyntaxError{Expression: expression, Message: err.Error()}
	}

	contacts, err := s.contacts.List(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := store.ToDocument(contacts)
	if err != nil {
		return nil, err
	}

	result, err := compiled.Search(doc)
	if err != nil {
		return nil, &QuerySyntaxError{Expression: expression, Message: "evaluation: " + err.Error()}
	}
	return result, nil
}
