// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

type IssueType string

const (
	IssueTypeWarning IssueType = "warning"
	IssueTypeError   IssueType = "error"
	IssueTypeFatal   IssueType = "fatal"
)

// ReportIssue logs err and sends it to sentry. A fatal issue panics after the
// event has been flushed.
func ReportIssue(err error, issueType IssueType, log *zap.SugaredLogger) {
	ReportIssueWithContext(err, issueType, log, nil)
}

func ReportIssuef(issueType IssueType, log *zap.SugaredLogger, template string, args ...interface{}) {
	ReportIssue(fmt.Errorf(template, args...), issueType, log)
}

// ReportIssueWithContext reports an issue with additional tags
func ReportIssueWithContext(err error, issueType IssueType, log *zap.SugaredLogger, context map[string]interface{}) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch issueType {
	case IssueTypeFatal:
		log.Errorf("Fatal error, terminating: %s", err)
		sendSentryEvent(createSentryEvent(sentry.LevelFatal, err, context))
		sentry.Flush(5 * time.Second)
		log.Panic("Fatal error")
	case IssueTypeError:
		log.Error(err)
		if shouldSend(getMeaningfulErrorTitle(err)) {
			sendSentryEvent(createSentryEvent(sentry.LevelError, err, context))
		}
	case IssueTypeWarning:
		log.Warn(err)
		if shouldSend(getMeaningfulErrorTitle(err)) {
			sendSentryEvent(createSentryEvent(sentry.LevelWarning, err, context))
		}
	}
}

func fsmContext(instanceID, fsmType, operation string) map[string]interface{} {
	return map[string]interface{}{
		"instance_id": instanceID,
		"fsm_type":    fsmType,
		"operation":   operation,
	}
}

// ReportFSMErrorf reports a state machine error with its instance, type and operation
func ReportFSMErrorf(log *zap.SugaredLogger, instanceID string, fsmType string, operation string, template string, args ...interface{}) {
	ReportIssueWithContext(fmt.Errorf(template, args...), IssueTypeError, log, fsmContext(instanceID, fsmType, operation))
}

// ReportFSMWarningf is ReportFSMErrorf at warning level
func ReportFSMWarningf(log *zap.SugaredLogger, instanceID string, fsmType string, operation string, template string, args ...interface{}) {
	ReportIssueWithContext(fmt.Errorf(template, args...), IssueTypeWarning, log, fsmContext(instanceID, fsmType, operation))
}
