// Package httppost provides the http-post emitter, which sends each message
// body as the payload of an HTTP POST request.
//
// Settings:
//
//	url          endpoint (required)
//	timeout      per-request timeout (default 30s)
//	retryCount   extra attempts after a failure, 0 to 10 (default 3)
//	contentType  Content-Type header (default application/octet-stream)
//	header.<K>   additional request header K
//
// Transport errors, 5xx and 429 responses are retried with exponential
// backoff. Other non-2xx responses fail the message immediately. A message
// that could not be delivered is returned as an error to the runtime
// environment, which counts it and moves on.
//
// Example:
//
//	{
//	  "id": "webhook",
//	  "type": "EMITTER",
//	  "name": "http-post",
//	  "version": "1.0.0",
//	  "fromQueues": ["out"],
//	  "settings": {
//	    "url": "https://example.com/ingest",
//	    "header.Authorization": "Bearer token"
//	  }
//	}
package httppost
