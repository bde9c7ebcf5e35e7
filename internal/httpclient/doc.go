// Package httpclient issues the GET requests that make up a load run.
//
// A run shares one [http.Client] from [NewClient]; constructing a client per
// request would defeat connection reuse. [RequestBuilder] fixes the target and
// headers, and [Executor] performs a request, reads the whole body and records
// one [metrics.Outcome]:
//
//	builder, err := httpclient.NewRequestBuilder(cfg.TargetURL, cfg.Headers)
//	if err != nil {
//		return err
//	}
//	exec := httpclient.NewExecutor(httpclient.NewClient(cfg.Timeout), builder, agg)
//	err = exec.Do(ctx)
//
// Only 2xx responses count as successes. Bytes sent is the length of the
// request URL; bytes received is the exact number of body bytes read.
// Requests abandoned because ctx was cancelled are not recorded.
package httpclient
