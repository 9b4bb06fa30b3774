// Command docflow is the operator CLI: one-shot document processing, review
// queue management, configuration utilities, and a foreground daemon runner.
package main
