// Package msgport lets unrelated processes on one host exchange small
// binary messages through ports identified by a shared name.
//
// The receiving side opens a LocalEndpoint under a name and binds it to a
// Scheduler; each inbound message runs the endpoint's callback with the
// message id, the payload, and the info value attached at Open:
//
//	ep, err := msgport.Open("svc.echo", func(id int32, payload []byte, info any) {
//		log.Printf("got %d: %q", id, payload)
//	})
//	if err != nil {
//		return err
//	}
//	defer ep.Invalidate()
//	ep.Listen(msgport.NewWorkQueue())
//
// The sending side resolves the name for every call and blocks until the
// receiver's callback has run or a timeout expires:
//
//	n, err := msgport.Send("svc.echo", 1, []byte("ping"), time.Second, time.Second)
//	if errors.Is(err, msgport.ErrInvalid) {
//		// nobody registered under svc.echo
//	}
//
// # Schedulers
//
// A RunLoop services every endpoint bound to it on the single goroutine
// calling Run, one callback at a time, in the order messages became ready.
// A WorkQueue runs callbacks on a bounded pool; callbacks of one endpoint
// stay ordered unless the queue was built WithEndpointConcurrency.
//
// # Teardown
//
// Invalidate unregisters the name first, then lets in-flight callbacks
// finish, then calls the release function given to WithInfo, exactly once.
// It never blocks; Done reports when the release has happened.
//
// # Errors
//
// Every failure is an *Error carrying an ErrorKind. Compare with errors.Is
// against the Err* sentinels. Send never retries.
package msgport
