package ghapi

import "testing"

func TestRequestKeyNormalization(t *testing.T) {
	tests := []struct {
		name string
		a    Request
		b    Request
		same bool
	}{
		{
			name: "identical requests",
			a:    Request{Endpoint: EndpointRepositories, Query: "language:go"},
			b:    Request{Endpoint: EndpointRepositories, Query: "language:go"},
			same: true,
		},
		{
			name: "explicit defaults stripped",
			a:    Request{Endpoint: EndpointRepositories, Query: "language:go"},
			b:    Request{Endpoint: EndpointRepositories, Query: "language:go", PerPage: 30, Page: 1},
			same: true,
		},
		{
			name: "endpoint case insensitive",
			a:    Request{Endpoint: "Repositories", Query: "language:go"},
			b:    Request{Endpoint: EndpointRepositories, Query: "language:go"},
			same: true,
		},
		{
			name: "different queries",
			a:    Request{Endpoint: EndpointRepositories, Query: "language:go"},
			b:    Request{Endpoint: EndpointRepositories, Query: "language:rust"},
			same: false,
		},
		{
			name: "different endpoints",
			a:    Request{Endpoint: EndpointRepositories, Query: "language:go"},
			b:    Request{Endpoint: EndpointCode, Query: "language:go"},
			same: false,
		},
		{
			name: "non-default page matters",
			a:    Request{Endpoint: EndpointIssues, Query: "is:open"},
			b:    Request{Endpoint: EndpointIssues, Query: "is:open", Page: 2},
			same: false,
		},
		{
			name: "non-default per_page matters",
			a:    Request{Endpoint: EndpointIssues, Query: "is:open"},
			b:    Request{Endpoint: EndpointIssues, Query: "is:open", PerPage: 100},
			same: false,
		},
		{
			name: "sort and order participate",
			a:    Request{Endpoint: EndpointRepositories, Query: "cli", Sort: "stars", Order: "desc"},
			b:    Request{Endpoint: EndpointRepositories, Query: "cli"},
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyA, keyB := tt.a.Key(), tt.b.Key()
			if (keyA == keyB) != tt.same {
				t.Errorf("Key equality = %v, want %v (a=%q b=%q)", keyA == keyB, tt.same, keyA, keyB)
			}
		})
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		request Request
		wantErr bool
	}{
		{
			name:    "valid repository search",
			request: Request{Endpoint: EndpointRepositories, Query: "language:go"},
		},
		{
			name:    "missing query",
			request: Request{Endpoint: EndpointRepositories},
			wantErr: true,
		},
		{
			name:    "whitespace query",
			request: Request{Endpoint: EndpointCode, Query: "   "},
			wantErr: true,
		},
		{
			name:    "labels without repository",
			request: Request{Endpoint: EndpointLabels, Query: "bug"},
			wantErr: true,
		},
		{
			name:    "labels with repository",
			request: Request{Endpoint: EndpointLabels, Query: "bug", RepositoryID: 42},
		},
		{
			name:    "unknown endpoint",
			request: Request{Endpoint: "gists", Query: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("Validate() returned %T, want *ValidationError", err)
			}
		})
	}
}

func TestRequestPath(t *testing.T) {
	req := Request{Endpoint: EndpointCommits, Query: "fix"}
	if got := req.Path(); got != "/search/commits" {
		t.Errorf("Path() = %q, want /search/commits", got)
	}
}
