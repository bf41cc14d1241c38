package main

import "os"

// localBody is the message RUN_LOCAL processes, LOCAL_SQS_BODY when set.
func localBody() string {
	if body := os.Getenv("LOCAL_SQS_BODY"); body != "" {
		return body
	}
	return `{"type":"order.created","order_id":"local-order-1"}`
}
