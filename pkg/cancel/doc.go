// Package cancel tracks in-flight backend requests so they can be cancelled
// from outside the goroutine that serves them, for example when the client
// disconnects or an operator cancels a request by id.
//
//	sig, err := registry.Register(requestID)
//	if err != nil {
//	    return err
//	}
//	defer registry.Release(requestID, sig)
//
//	select {
//	case res := <-results:
//	    ...
//	case <-sig.Done():
//	    return errCancelled
//	}
package cancel
