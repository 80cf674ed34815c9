package platforms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "fnkit/errors"
	"fnkit/handler"
	"fnkit/redact"
)

// DefaultOutputBinding is the HTTP output binding name used in
// function.json when none is configured.
const DefaultOutputBinding = "res"

// httpTriggerBinding is the conventional name of the HTTP trigger binding.
const httpTriggerBinding = "req"

// AzureAdapter serves the Azure Functions custom handler protocol. The host
// posts every invocation to /{function} as a JSON document carrying the
// trigger data and metadata; the adapter answers with the output bindings.
type AzureAdapter struct {
	handler       handler.Invoker
	redactor      *redact.Redactor
	outputBinding string
	router        chi.Router
}

// NewAzureAdapter creates an adapter for a custom handler.
func NewAzureAdapter(h handler.Invoker) *AzureAdapter {
	a := &AzureAdapter{
		handler:       h,
		redactor:      redact.New(),
		outputBinding: DefaultOutputBinding,
	}

	r := chi.NewRouter()
	r.Post("/{function}", a.handleInvocation)
	a.router = r
	return a
}

// WithRedactor sets the redactor used for error bodies.
func (a *AzureAdapter) WithRedactor(r *redact.Redactor) *AzureAdapter {
	a.redactor = r
	return a
}

// WithOutputBinding sets the name of the HTTP output binding.
func (a *AzureAdapter) WithOutputBinding(name string) *AzureAdapter {
	a.outputBinding = name
	return a
}

// ServeHTTP implements the http.Handler interface.
func (a *AzureAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Serve listens on the port given by the host until ctx is cancelled.
func (a *AzureAdapter) Serve(ctx context.Context, port string) error {
	if port == "" {
		port = "8080"
	}
	return serve(ctx, ":"+port, a, 0, 0)
}

type azureInvocation struct {
	Data     map[string]json.RawMessage `json:"Data"`
	Metadata map[string]json.RawMessage `json:"Metadata"`
}

type azureHTTPTrigger struct {
	URL        string              `json:"Url"`
	Method     string              `json:"Method"`
	Query      json.RawMessage     `json:"Query"`
	Headers    map[string][]string `json:"Headers"`
	Params     map[string]string   `json:"Params"`
	Body       json.RawMessage     `json:"Body"`
	Identities json.RawMessage     `json:"Identities"`
}

type azureSys struct {
	MethodName string `json:"MethodName"`
	UtcNow     string `json:"UtcNow"`
	RandGuid   string `json:"RandGuid"`
}

type azureHTTPResponse struct {
	StatusCode int               `json:"statusCode"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type azureResult struct {
	Outputs     map[string]any `json:"Outputs"`
	Logs        []string       `json:"Logs"`
	ReturnValue any            `json:"ReturnValue"`
}

func (a *AzureAdapter) handleInvocation(w http.ResponseWriter, r *http.Request) {
	function := chi.URLParam(r, "function")

	var payload azureInvocation
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.writeError(w, malformed("invocation payload is not valid JSON", err))
		return
	}

	pc := handler.ProviderContext{
		RequestID:    firstNonEmpty(r.Header.Get("X-Azure-Functions-InvocationId"), payload.sys().RandGuid),
		FunctionName: function,
		Platform:     handler.PlatformAzure,
		Raw:          payload.Metadata,
	}

	if raw, ok := payload.Data[httpTriggerBinding]; ok {
		a.handleHTTPTrigger(r.Context(), w, raw, pc)
		return
	}

	binding := payload.triggerBinding()
	if binding == "" {
		a.writeError(w, unsupported("invocation carries no trigger data"))
		return
	}
	a.handleQueueTrigger(r.Context(), w, binding, payload, pc)
}

func (a *AzureAdapter) handleHTTPTrigger(ctx context.Context, w http.ResponseWriter, raw json.RawMessage, pc handler.ProviderContext) {
	var trigger azureHTTPTrigger
	if err := json.Unmarshal(raw, &trigger); err != nil {
		a.writeError(w, malformed("invalid HTTP trigger data", err))
		return
	}

	query := map[string]string{}
	if q := unquote(trigger.Query); len(q) > 0 {
		if err := json.Unmarshal(q, &query); err != nil {
			a.writeError(w, malformed("invalid HTTP trigger query", err))
			return
		}
	}

	headers := mergeMultiValue(nil, trigger.Headers, true)
	path := trigger.URL
	if u, err := url.Parse(trigger.URL); err == nil {
		path = u.Path
	}

	event := &handler.Event{
		ID:             firstNonEmpty(pc.RequestID, newID()),
		Source:         handler.SourceAzureHTTP,
		Type:           "http",
		Method:         trigger.Method,
		Path:           path,
		Headers:        headers,
		Query:          query,
		PathParameters: trigger.Params,
		Body:           unquote(trigger.Body),
		Metadata:       map[string]string{"function": pc.FunctionName},
		Authorizer:     clientPrincipalClaims(headers),
		Timestamp:      time.Now().UTC(),
	}

	resp, err := a.handler.Handle(ctx, handler.NewInvocation(event, pc))
	out := ToHTTP(resp, err, a.redactor)

	writeJSON(w, http.StatusOK, azureResult{
		Outputs: map[string]any{
			a.outputBinding: azureHTTPResponse{
				StatusCode: out.StatusCode,
				Body:       string(out.Body),
				Headers:    out.Headers,
			},
		},
		Logs: []string{},
	})
}

// handleQueueTrigger runs a queue delivery as a one-record batch. Errors are
// answered with 500 so the host applies its retry and poison-queue policy.
func (a *AzureAdapter) handleQueueTrigger(ctx context.Context, w http.ResponseWriter, binding string, payload azureInvocation, pc handler.ProviderContext) {
	attributes := payload.attributes()
	record := handler.Record{
		ID:         firstNonEmpty(attributes["Id"], newID()),
		Body:       unquote(payload.Data[binding]),
		Attributes: attributes,
	}

	event := &handler.Event{
		ID:        firstNonEmpty(pc.RequestID, record.ID),
		Source:    handler.SourceAzureQueue,
		Type:      binding,
		Records:   []handler.Record{record},
		Metadata:  map[string]string{"function": pc.FunctionName, "binding": binding},
		Timestamp: time.Now().UTC(),
	}

	resp, err := a.handler.Handle(ctx, handler.NewInvocation(event, pc))
	if err == nil && resp.Status() >= http.StatusInternalServerError {
		err = apperrors.Application(apperrors.CodeInternal, "queue handler responded with a server error", resp.Status())
	}
	if err != nil {
		envelope := ToHTTP(handler.Response{}, err, a.redactor)
		writeJSON(w, http.StatusInternalServerError, azureResult{
			Outputs:     map[string]any{},
			Logs:        []string{apperrors.CodeOf(err) + ": " + apperrors.ToBody(err).Message},
			ReturnValue: json.RawMessage(envelope.Body),
		})
		return
	}

	var returnValue any
	if json.Valid(resp.Body) {
		returnValue = json.RawMessage(resp.Body)
	}
	writeJSON(w, http.StatusOK, azureResult{
		Outputs:     map[string]any{},
		Logs:        []string{},
		ReturnValue: returnValue,
	})
}

func (a *AzureAdapter) writeError(w http.ResponseWriter, err error) {
	resp := ToHTTP(handler.Response{}, err, a.redactor)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (p azureInvocation) sys() azureSys {
	var sys azureSys
	if raw, ok := p.Metadata["sys"]; ok {
		_ = json.Unmarshal(raw, &sys)
	}
	return sys
}

// triggerBinding returns the first data binding in name order.
func (p azureInvocation) triggerBinding() string {
	names := make([]string, 0, len(p.Data))
	for name := range p.Data {
		names = append(names, name)
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}

// attributes flattens scalar trigger metadata such as Id and DequeueCount.
func (p azureInvocation) attributes() map[string]string {
	out := make(map[string]string)
	for key, raw := range p.Metadata {
		if key == "sys" || len(raw) == 0 {
			continue
		}
		switch raw[0] {
		case '{', '[':
			continue
		case '"':
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				out[key] = s
			}
		default:
			if string(raw) != "null" {
				out[key] = string(raw)
			}
		}
	}
	return out
}

// unquote returns the content of a JSON string, or the raw value for any
// other JSON type. null becomes nil.
func unquote(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return raw
}

type clientPrincipal struct {
	AuthType string `json:"auth_typ"`
	NameType string `json:"name_typ"`
	RoleType string `json:"role_typ"`
	Claims   []struct {
		Type  string `json:"typ"`
		Value string `json:"val"`
	} `json:"claims"`
}

// short names for well-known claim types
var claimAliases = map[string]string{
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier": "sub",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress":   "email",
	"http://schemas.microsoft.com/identity/claims/objectidentifier":        "oid",
}

// clientPrincipalClaims decodes the App Service authentication header
// x-ms-client-principal into a claim set. It returns nil when the request
// was not authenticated.
func clientPrincipalClaims(headers map[string]string) map[string]any {
	encoded := headers["x-ms-client-principal"]
	if encoded == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	var cp clientPrincipal
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil
	}

	claims := make(map[string]any)
	var roles []string
	for _, c := range cp.Claims {
		switch {
		case cp.RoleType != "" && c.Type == cp.RoleType, c.Type == "roles":
			roles = append(roles, c.Value)
			continue
		case cp.NameType != "" && c.Type == cp.NameType:
			claims["username"] = c.Value
		}
		if alias, ok := claimAliases[c.Type]; ok {
			if _, set := claims[alias]; !set {
				claims[alias] = c.Value
			}
		}
		claims[c.Type] = c.Value
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	if id := headers["x-ms-client-principal-id"]; id != "" {
		claims["userId"] = id
	}
	if name := headers["x-ms-client-principal-name"]; name != "" {
		if _, ok := claims["username"]; !ok {
			claims["username"] = name
		}
	}
	if cp.AuthType != "" {
		claims["auth_typ"] = cp.AuthType
	}
	if len(claims) == 0 {
		return nil
	}
	return claims
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
