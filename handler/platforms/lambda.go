package platforms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"fnkit/config"
	apperrors "fnkit/errors"
	"fnkit/handler"
	"fnkit/redact"
)

// LambdaAdapter adapts a pipeline to the AWS Lambda runtime. It accepts API
// Gateway REST (v1) and HTTP API (v2) proxy events and SQS batches.
type LambdaAdapter struct {
	handler  handler.Invoker
	config   config.LambdaConfig
	redactor *redact.Redactor
}

// NewLambdaAdapter creates a new Lambda adapter. A nil config uses the
// defaults.
func NewLambdaAdapter(h handler.Invoker, cfg *config.LambdaConfig) *LambdaAdapter {
	if cfg == nil {
		defaults := config.DefaultLambdaConfig()
		cfg = &defaults
	}
	return &LambdaAdapter{
		handler:  h,
		config:   *cfg,
		redactor: redact.New(),
	}
}

// WithRedactor sets the redactor used for error bodies.
func (a *LambdaAdapter) WithRedactor(r *redact.Redactor) *LambdaAdapter {
	a.redactor = r
	return a
}

// Start begins the Lambda runtime handler
func (a *LambdaAdapter) Start() {
	lambda.Start(a.HandleEvent)
}

// eventShape holds just enough of a raw event to route it.
type eventShape struct {
	Records []struct {
		EventSource string `json:"eventSource"`
	} `json:"Records"`
	HTTPMethod     string `json:"httpMethod"`
	Version        string `json:"version"`
	RequestContext struct {
		HTTP struct {
			Method string `json:"method"`
		} `json:"http"`
	} `json:"requestContext"`
}

// HandleEvent is the main Lambda handler that routes different event types
// by their shape. Unrecognized shapes fail with UNSUPPORTED_EVENT.
func (a *LambdaAdapter) HandleEvent(ctx context.Context, event json.RawMessage) (interface{}, error) {
	var shape eventShape
	if err := json.Unmarshal(event, &shape); err != nil {
		return nil, malformed("event is not valid JSON", err)
	}

	switch {
	case len(shape.Records) > 0 && shape.Records[0].EventSource == "aws:sqs":
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(event, &sqsEvent); err != nil {
			return nil, malformed("invalid SQS event", err)
		}
		return a.HandleSQS(ctx, sqsEvent)

	case shape.Version == "2.0" && shape.RequestContext.HTTP.Method != "":
		var req events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(event, &req); err != nil {
			return nil, malformed("invalid HTTP API event", err)
		}
		return a.HandleHTTPAPI(ctx, req)

	case shape.HTTPMethod != "":
		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(event, &req); err != nil {
			return nil, malformed("invalid API Gateway event", err)
		}
		return a.HandleAPIGateway(ctx, req)
	}

	return nil, unsupported("unsupported event type")
}

// HandleAPIGateway handles an API Gateway REST API proxy event.
func (a *LambdaAdapter) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body, err := a.decodeBody(req.Body, req.IsBase64Encoded)
	if err != nil {
		return toProxyResponse(ToHTTP(handler.Response{}, malformed("request body is not valid base64", err), a.redactor)), nil
	}

	event := &handler.Event{
		ID:             firstNonEmpty(req.RequestContext.RequestID, newID()),
		Source:         handler.SourceAPIGateway,
		Type:           "http",
		Method:         req.HTTPMethod,
		Path:           req.Path,
		Headers:        mergeMultiValue(req.Headers, req.MultiValueHeaders, true),
		Query:          mergeMultiValue(req.QueryStringParameters, req.MultiValueQueryStringParameters, false),
		PathParameters: req.PathParameters,
		Body:           body,
		Metadata: map[string]string{
			"resource": req.Resource,
			"stage":    req.RequestContext.Stage,
		},
		Authorizer: restAuthorizerClaims(req.RequestContext.Authorizer),
		Timestamp:  time.Now().UTC(),
	}

	resp, err := a.handler.Handle(ctx, handler.NewInvocation(event, a.providerContext(ctx)))
	return toProxyResponse(ToHTTP(resp, err, a.redactor)), nil
}

// HandleHTTPAPI handles an API Gateway HTTP API (payload v2.0) event.
func (a *LambdaAdapter) HandleHTTPAPI(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body, err := a.decodeBody(req.Body, req.IsBase64Encoded)
	if err != nil {
		return toV2Response(ToHTTP(handler.Response{}, malformed("request body is not valid base64", err), a.redactor)), nil
	}

	headers := lowerKeys(req.Headers)
	if len(req.Cookies) > 0 {
		headers["cookie"] = strings.Join(req.Cookies, "; ")
	}

	event := &handler.Event{
		ID:             firstNonEmpty(req.RequestContext.RequestID, newID()),
		Source:         handler.SourceAPIGatewayV2,
		Type:           "http",
		Method:         req.RequestContext.HTTP.Method,
		Path:           firstNonEmpty(req.RawPath, req.RequestContext.HTTP.Path),
		Headers:        headers,
		Query:          req.QueryStringParameters,
		PathParameters: req.PathParameters,
		Body:           body,
		Metadata: map[string]string{
			"route_key": req.RouteKey,
			"stage":     req.RequestContext.Stage,
			"source_ip": req.RequestContext.HTTP.SourceIP,
		},
		Authorizer: httpAPIAuthorizerClaims(req.RequestContext.Authorizer),
		Timestamp:  time.Now().UTC(),
	}

	resp, err := a.handler.Handle(ctx, handler.NewInvocation(event, a.providerContext(ctx)))
	return toV2Response(ToHTTP(resp, err, a.redactor)), nil
}

// HandleSQS runs an SQS batch through the pipeline as one invocation whose
// event carries every message as a record. With partial batch failure
// enabled, an aggregate error naming failed records is reported through
// BatchItemFailures so only those messages are redelivered. Any other
// error fails the whole batch.
func (a *LambdaAdapter) HandleSQS(ctx context.Context, e events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{
		BatchItemFailures: []events.SQSBatchItemFailure{},
	}

	records := make([]handler.Record, 0, len(e.Records))
	for _, msg := range e.Records {
		records = append(records, a.recordFromSQS(msg))
	}

	pc := a.providerContext(ctx)
	event := &handler.Event{
		ID:        firstNonEmpty(pc.RequestID, newID()),
		Source:    handler.SourceSQS,
		Type:      "batch",
		Records:   records,
		Timestamp: time.Now().UTC(),
	}
	if len(e.Records) > 0 {
		event.Metadata = map[string]string{"event_source_arn": e.Records[0].EventSourceARN}
	}

	resp, err := a.handler.Handle(ctx, handler.NewInvocation(event, pc))
	if err == nil {
		if resp.Status() >= http.StatusInternalServerError {
			return response, fmt.Errorf("batch handler responded with status %d", resp.Status())
		}
		return response, nil
	}

	if !a.config.EnablePartialBatchFailure {
		return response, err
	}

	failed := failedRecordIDs(err)
	if len(failed) == 0 {
		return response, err
	}
	for _, id := range failed {
		response.BatchItemFailures = append(response.BatchItemFailures,
			events.SQSBatchItemFailure{ItemIdentifier: id})
	}
	return response, nil
}

// recordFromSQS converts SQS message to handler.Record
func (a *LambdaAdapter) recordFromSQS(msg events.SQSMessage) handler.Record {
	attributes := make(map[string]string, len(msg.MessageAttributes)+1)
	for key, attr := range msg.MessageAttributes {
		if attr.StringValue != nil {
			attributes[key] = *attr.StringValue
		}
	}
	if count, ok := msg.Attributes["ApproximateReceiveCount"]; ok {
		attributes["receive_count"] = count
	}

	body := []byte(msg.Body)
	if a.config.AutoBase64Decode && !json.Valid(body) {
		if decoded, err := base64.StdEncoding.DecodeString(msg.Body); err == nil && json.Valid(decoded) {
			body = decoded
		}
	}

	return handler.Record{
		ID:         msg.MessageId,
		Body:       body,
		Attributes: attributes,
	}
}

// failedRecordIDs returns the record ids named by an aggregate error, in
// failure order.
func failedRecordIDs(err error) []string {
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.KindAggregate {
		return nil
	}
	var ids []string
	for _, f := range appErr.Failures {
		if id, ok := f.Data["record_id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (a *LambdaAdapter) decodeBody(body string, isBase64 bool) ([]byte, error) {
	if !isBase64 || !a.config.AutoBase64Decode {
		return []byte(body), nil
	}
	return base64.StdEncoding.DecodeString(body)
}

func (a *LambdaAdapter) providerContext(ctx context.Context) handler.ProviderContext {
	pc := handler.ProviderContext{
		FunctionName: lambdacontext.FunctionName,
		Platform:     handler.PlatformLambda,
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		pc.RequestID = lc.AwsRequestID
		pc.Raw = lc
	}
	if deadline, ok := ctx.Deadline(); ok {
		pc.Deadline = deadline
	}
	return pc
}

// restAuthorizerClaims reads claims from a REST API authorizer context:
// the "claims" sub-map for Cognito user pools, the whole map for Lambda
// authorizers.
func restAuthorizerClaims(authorizer map[string]interface{}) map[string]any {
	if len(authorizer) == 0 {
		return nil
	}
	if claims, ok := authorizer["claims"].(map[string]interface{}); ok {
		return claims
	}
	return authorizer
}

func httpAPIAuthorizerClaims(authorizer *events.APIGatewayV2HTTPRequestContextAuthorizerDescription) map[string]any {
	if authorizer == nil {
		return nil
	}
	if authorizer.JWT != nil && len(authorizer.JWT.Claims) > 0 {
		claims := make(map[string]any, len(authorizer.JWT.Claims)+1)
		for k, v := range authorizer.JWT.Claims {
			claims[k] = v
		}
		if len(authorizer.JWT.Scopes) > 0 {
			claims["scopes"] = authorizer.JWT.Scopes
		}
		return claims
	}
	if len(authorizer.Lambda) > 0 {
		return authorizer.Lambda
	}
	return nil
}

func toProxyResponse(resp handler.Response) events.APIGatewayProxyResponse {
	body, isBase64 := encodeBody(resp.Body)
	return events.APIGatewayProxyResponse{
		StatusCode:      resp.StatusCode,
		Headers:         resp.Headers,
		Body:            body,
		IsBase64Encoded: isBase64,
	}
}

func toV2Response(resp handler.Response) events.APIGatewayV2HTTPResponse {
	body, isBase64 := encodeBody(resp.Body)
	return events.APIGatewayV2HTTPResponse{
		StatusCode:      resp.StatusCode,
		Headers:         resp.Headers,
		Body:            body,
		IsBase64Encoded: isBase64,
	}
}

// encodeBody base64-encodes bodies that are not valid UTF-8.
func encodeBody(body []byte) (string, bool) {
	if utf8.Valid(body) {
		return string(body), false
	}
	return base64.StdEncoding.EncodeToString(body), true
}
