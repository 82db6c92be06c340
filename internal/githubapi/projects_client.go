package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrIterationsNotFound reports that no project iteration field could be found.
var ErrIterationsNotFound = errors.New("project iterations not found")

// ProjectIteration is one iteration of a Projects v2 iteration field.
type ProjectIteration struct {
	ID    string
	Title string
	// StartDate is a calendar date, YYYY-MM-DD.
	StartDate string
	// Duration is the iteration length in days.
	Duration int
}

// ProjectsClient reads Projects v2 iteration fields over GraphQL.
type ProjectsClient struct {
	endpoint      string
	requestClient *Client
}

const orgProjectsQuery = `query($org: String!) {
  organization(login: $org) {
    projectsV2(first: 20) {
      nodes { id title number url }
    }
  }
}`

const projectIterationsQuery = `query($id: ID!) {
  node(id: $id) {
    ... on ProjectV2 {
      fields(first: 50) {
        nodes {
          ... on ProjectV2IterationField {
            id
            name
            configuration {
              iterations { id title startDate duration }
              completedIterations { id title startDate duration }
            }
          }
        }
      }
    }
  }
}`

// NewProjectsClient creates a GraphQL client for project iteration lookups.
func NewProjectsClient(graphqlURL string, requestClient *Client) (*ProjectsClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(graphqlURL))
	if err != nil {
		return nil, fmt.Errorf("parse graphql url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse graphql url: missing scheme or host")
	}
	return &ProjectsClient{endpoint: parsed.String(), requestClient: requestClient}, nil
}

// ListIterations returns the iterations of the first iteration field on the
// organization project titled projectName. An empty projectName selects the
// first project that has an iteration field. Completed iterations are
// included; order follows the API.
func (c *ProjectsClient) ListIterations(ctx context.Context, org, projectName string) ([]ProjectIteration, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return nil, fmt.Errorf("organization is required")
	}

	var projects orgProjectsData
	if err := c.query(ctx, orgProjectsQuery, map[string]any{"org": trimmedOrg}, &projects); err != nil {
		return nil, err
	}
	if projects.Organization == nil {
		return nil, fmt.Errorf("organization %s: %w", trimmedOrg, ErrIterationsNotFound)
	}

	wanted := strings.TrimSpace(projectName)
	for _, project := range projects.Organization.ProjectsV2.Nodes {
		if wanted != "" && !strings.EqualFold(strings.TrimSpace(project.Title), wanted) {
			continue
		}
		iterations, err := c.projectIterations(ctx, project.ID)
		if errors.Is(err, ErrIterationsNotFound) && wanted == "" {
			continue
		}
		return iterations, err
	}
	if wanted != "" {
		return nil, fmt.Errorf("project %q: %w", wanted, ErrIterationsNotFound)
	}
	return nil, ErrIterationsNotFound
}

func (c *ProjectsClient) projectIterations(ctx context.Context, projectID string) ([]ProjectIteration, error) {
	var fields projectFieldsData
	if err := c.query(ctx, projectIterationsQuery, map[string]any{"id": projectID}, &fields); err != nil {
		return nil, err
	}
	if fields.Node == nil {
		return nil, ErrIterationsNotFound
	}

	for _, field := range fields.Node.Fields.Nodes {
		if field.Configuration == nil {
			continue
		}
		iterations := make([]ProjectIteration, 0, len(field.Configuration.Iterations)+len(field.Configuration.CompletedIterations))
		for _, raw := range field.Configuration.CompletedIterations {
			iterations = append(iterations, ProjectIteration(raw))
		}
		for _, raw := range field.Configuration.Iterations {
			iterations = append(iterations, ProjectIteration(raw))
		}
		if len(iterations) > 0 {
			return iterations, nil
		}
	}
	return nil, ErrIterationsNotFound
}

func (c *ProjectsClient) query(ctx context.Context, query string, variables map[string]any, target any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, metadata, err := c.requestClient.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}
	if status := endpointStatusFromResponse(resp, metadata); status != EndpointStatusOK {
		_ = resp.Body.Close()
		return fmt.Errorf("graphql request returned %s (http %d)", status, resp.StatusCode)
	}

	var envelope graphQLResponse
	if err := decodeJSONAndClose(resp, &envelope); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, graphErr := range envelope.Errors {
			messages = append(messages, graphErr.Message)
		}
		return fmt.Errorf("graphql errors: %s", strings.Join(messages, "; "))
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return ErrIterationsNotFound
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type orgProjectsData struct {
	Organization *struct {
		ProjectsV2 struct {
			Nodes []struct {
				ID     string `json:"id"`
				Title  string `json:"title"`
				Number int    `json:"number"`
				URL    string `json:"url"`
			} `json:"nodes"`
		} `json:"projectsV2"`
	} `json:"organization"`
}

type iterationPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	StartDate string `json:"startDate"`
	Duration  int    `json:"duration"`
}

type projectFieldsData struct {
	Node *struct {
		Fields struct {
			Nodes []struct {
				ID            string `json:"id"`
				Name          string `json:"name"`
				Configuration *struct {
					Iterations          []iterationPayload `json:"iterations"`
					CompletedIterations []iterationPayload `json:"completedIterations"`
				} `json:"configuration"`
			} `json:"nodes"`
		} `json:"fields"`
	} `json:"node"`
}
