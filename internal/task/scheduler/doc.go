// Package scheduler runs named periodic jobs.
//
// Cron (robfig/cron, "@every" schedules) only produces ticks. Every job owns
// one worker goroutine fed by a single-slot trigger channel, so ticks that
// arrive while the job is running coalesce into one follow-up run and a job
// never overlaps itself. Workers run under the supervisor: an iteration that
// fails or panics is logged and the worker pauses for the cooldown before it
// takes the next trigger.
package scheduler
