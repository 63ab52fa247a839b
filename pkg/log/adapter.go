package log

import "github.com/sirupsen/logrus"

// BadgerAdapter satisfies badger.Logger using a contextualized logrus entry,
// so store-internal log lines carry the same fields as the rest of the app.
type BadgerAdapter struct {
	entry *logrus.Entry
}

// NewBadgerAdapter creates an adapter around the given entry.
func NewBadgerAdapter(entry *logrus.Entry) *BadgerAdapter {
	return &BadgerAdapter{entry: entry}
}

func (a *BadgerAdapter) Errorf(f string, v ...interface{})   { a.entry.Errorf(f, v...) }
func (a *BadgerAdapter) Warningf(f string, v ...interface{}) { a.entry.Warningf(f, v...) }
func (a *BadgerAdapter) Infof(f string, v ...interface{})    { a.entry.Infof(f, v...) }
func (a *BadgerAdapter) Debugf(f string, v ...interface{})   { a.entry.Debugf(f, v...) }
