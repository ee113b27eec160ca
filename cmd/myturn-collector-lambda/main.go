package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	mtc "github.com/MyTurnWatch/myturn-collectors/golang"
)

// AWS Lambda wrapper for the collector job

func HandleRequest(ctx context.Context, event mtc.CollectorEvent) (mtc.JobResult, error) {
	result, err := mtc.RunCollectorJob(event)
	if err != nil {
		mtc.Log.Errorf("%v", err)
		return mtc.JobResult{StatusCode: 500, Body: "ERROR"}, nil
	}

	return result, nil
}

func main() {
	lambda.Start(HandleRequest)
}
