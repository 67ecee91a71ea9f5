package model_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	model "github.com/okian/sessiond/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParseTime(t *testing.T) {
	convey.Convey("Given ISO-8601 timestamps", t, func() {
		convey.Convey("When the timestamp carries microseconds and no zone", func() {
			ts, err := model.ParseTime("2016-12-02T12:48:05.520022")

			convey.Convey("Then it is read as UTC and truncated to milliseconds", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ts.Equal(time.Date(2016, 12, 2, 12, 48, 5, 520_000_000, time.UTC)), convey.ShouldBeTrue)
				convey.So(ts.Location(), convey.ShouldEqual, time.UTC)
			})
		})

		convey.Convey("When the sub-millisecond digits would round up", func() {
			ts, err := model.ParseTime("2016-12-02T12:48:05.520999")

			convey.Convey("Then they are dropped, not rounded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ts.Nanosecond(), convey.ShouldEqual, 520_000_000)
			})
		})

		convey.Convey("When the timestamp has an explicit offset", func() {
			ts, err := model.ParseTime("2016-12-02T14:48:05.123456+02:00")

			convey.Convey("Then it is converted to UTC", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ts.Hour(), convey.ShouldEqual, 12)
				convey.So(ts.Nanosecond(), convey.ShouldEqual, 123_000_000)
			})
		})

		convey.Convey("When the timestamp uses a space separator", func() {
			ts, err := model.ParseTime("2016-12-02 12:48:05")

			convey.Convey("Then it parses", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ts.Second(), convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When the timestamp is garbage", func() {
			_, err := model.ParseTime("yesterday")

			convey.Convey("Then it fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestIncompleteRecord(t *testing.T) {
	convey.Convey("Given a staging row for one session", t, func() {
		key := model.SessionKey{PlayerID: "p1", SessionID: uuid.New()}
		t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
		t1 := t0.Add(time.Hour)

		start := model.Event{Kind: model.KindStart, PlayerID: key.PlayerID, SessionID: key.SessionID, Country: "CA", HasCountry: true, TS: t0}
		end := model.Event{Kind: model.KindEnd, PlayerID: key.PlayerID, SessionID: key.SessionID, TS: t1}

		convey.Convey("When only the start has been merged", func() {
			rec := model.IncompleteRecord{Key: key}.Merge(start.Patch())

			convey.Convey("Then it is not complete", func() {
				convey.So(rec.Complete(), convey.ShouldBeFalse)
				convey.So(rec.Ordered(), convey.ShouldBeFalse)
				convey.So(*rec.Country, convey.ShouldEqual, "CA")
			})
		})

		convey.Convey("When the end arrives before the start", func() {
			rec := model.IncompleteRecord{Key: key}.Merge(end.Patch()).Merge(start.Patch())

			convey.Convey("Then both bounds are present and ordered", func() {
				convey.So(rec.Complete(), convey.ShouldBeTrue)
				convey.So(rec.Ordered(), convey.ShouldBeTrue)

				c := rec.Completed()
				convey.So(c.PlayerID, convey.ShouldEqual, "p1")
				convey.So(c.SessionID, convey.ShouldEqual, key.SessionID)
				convey.So(c.Country, convey.ShouldEqual, "CA")
				convey.So(c.StartTime.Equal(t0), convey.ShouldBeTrue)
				convey.So(c.EndTime.Equal(t1), convey.ShouldBeTrue)
				convey.So(c.Key(), convey.ShouldResemble, key)
			})
		})

		convey.Convey("When start and end are equal", func() {
			same := end
			same.TS = t0
			rec := model.IncompleteRecord{Key: key}.Merge(start.Patch()).Merge(same.Patch())

			convey.Convey("Then the row is complete but not ordered", func() {
				convey.So(rec.Complete(), convey.ShouldBeTrue)
				convey.So(rec.Ordered(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When an end event is patched in", func() {
			p := end.Patch()

			convey.Convey("Then it never touches country or start", func() {
				convey.So(p.Country, convey.ShouldBeNil)
				convey.So(p.StartTime, convey.ShouldBeNil)
				convey.So(p.EndTime, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestEventKind(t *testing.T) {
	convey.Convey("Given the event kinds", t, func() {
		convey.So(model.KindStart.String(), convey.ShouldEqual, "start")
		convey.So(model.KindEnd.String(), convey.ShouldEqual, "end")
		convey.So(model.KindUnknown.String(), convey.ShouldEqual, "unknown")
	})
}
