package guard_test

import (
	"errors"
	"testing"

	"github.com/okian/boardcheck/internal/domain/guard"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCompile(t *testing.T) {
	Convey("Given guard expressions", t, func() {
		Convey("When the expression is valid", func() {
			g, err := guard.Compile("report.gap > 0.2 && report.calibrated >= 0.9")

			Convey("Then it should compile", func() {
				So(err, ShouldBeNil)
				So(g.Expression(), ShouldEqual, "report.gap > 0.2 && report.calibrated >= 0.9")
			})
		})

		Convey("When the expression is blank", func() {
			_, err := guard.Compile("   ")

			Convey("Then it should be rejected as empty", func() {
				So(errors.Is(err, guard.ErrEmptyExpression), ShouldBeTrue)
			})
		})

		Convey("When the expression does not parse", func() {
			_, err := guard.Compile("report.gap >")

			Convey("Then it should fail to compile", func() {
				So(errors.Is(err, guard.ErrCompile), ShouldBeTrue)
			})
		})

		Convey("When the expression yields a number", func() {
			_, err := guard.Compile("1 + 2")

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, guard.ErrCompile), ShouldBeTrue)
			})
		})
	})
}

func TestAllow(t *testing.T) {
	Convey("Given a compiled guard", t, func() {
		g, err := guard.Compile(`report.has_gap && report.gap > 0.2 && report.student.startsWith("s-")`)
		So(err, ShouldBeNil)

		Convey("When the input satisfies the rule", func() {
			ok, err := g.Allow(guard.Input{Model: "mobilefacenet", Student: "s-1", Calibrated: 0.92, Gap: 0.3, HasGap: true})

			Convey("Then it should allow", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When the gap is too small", func() {
			ok, err := g.Allow(guard.Input{Student: "s-1", Gap: 0.1, HasGap: true})

			Convey("Then it should deny", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestCache(t *testing.T) {
	Convey("Given a guard cache", t, func() {
		c := guard.NewCache()

		Convey("When the same expression is requested twice", func() {
			a, errA := c.Get("report.score > 0.5")
			b, errB := c.Get("report.score > 0.5")

			Convey("Then the compiled guard should be reused", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a, ShouldEqual, b)
			})
		})

		Convey("When the expression is invalid", func() {
			_, err := c.Get("report.score >")

			Convey("Then the error should surface", func() {
				So(errors.Is(err, guard.ErrCompile), ShouldBeTrue)
			})
		})
	})
}
