// Package openai implements providers.Backend for OpenAI-compatible chat
// completions APIs, including Azure OpenAI deployments.
//
// # Basic Usage
//
//	client := openai.NewClient(providers.ProviderConfig{
//	    BaseURL:    "https://api.openai.com/v1",
//	    APIKey:     os.Getenv("OPENAI_API_KEY"),
//	    Timeout:    90 * time.Second,
//	    MaxRetries: 2,
//	}, cancel.NewRegistry())
//	defer client.Close()
//
//	resp, err := client.Complete(ctx, req, requestID)
//
// # Streaming
//
//	stream, err := client.Stream(ctx, req, requestID)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for {
//	    chunk, err := stream.Read(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    ...
//	}
//
// Streaming requests always ask for a trailing usage fragment
// (stream_options.include_usage). Malformed fragments are skipped; an
// in-band {"error": ...} fragment ends the stream with a *providers.Error.
//
// # Cancellation
//
// When a request id is given, the call is registered with the cancel
// registry for its whole lifetime. Cancelling the id aborts the in-flight
// HTTP request, any retry wait, and a blocked stream read.
//
// # Azure
//
// A non-empty ProviderConfig.APIVersion switches to Azure routing:
// {base}/openai/deployments/{model}/chat/completions?api-version=...,
// authenticated with the api-key header.
package openai
