package mempool

import (
	"errors"
	"reflect"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type testVertex struct {
	x, y, z float32
}

type testNode struct {
	value testVertex
	next  uintptr
}

func TestTypedAllocate(t *testing.T) {
	Convey("When allocating typed objects", t, func() {
		r := NewRegistry()
		defer r.Release()

		p, err := For[testVertex](r)
		So(err, ShouldBeNil)

		v1, err := p.Allocate(1)
		So(err, ShouldBeNil)
		v2, err := p.Allocate(1)
		So(err, ShouldBeNil)
		So(v1, ShouldNotEqual, v2)

		Convey("the slots hold values independently", func() {
			*v1 = testVertex{x: 1, y: 2, z: 3}
			*v2 = testVertex{x: 4, y: 5, z: 6}
			So(*v1, ShouldResemble, testVertex{x: 1, y: 2, z: 3})
			So(*v2, ShouldResemble, testVertex{x: 4, y: 5, z: 6})

			Convey("and deallocation returns them to the pool", func() {
				So(p.Deallocate(v2, 1), ShouldBeNil)
				So(p.Deallocate(v1, 1), ShouldBeNil)
				So(p.Pool().NumChunks(), ShouldEqual, 0)
			})
		})
	})
}

func TestTypedCountContract(t *testing.T) {
	Convey("When passing a count other than 1 in checked mode", t, func() {
		r := NewRegistry()
		defer r.Release()

		p, err := For[testVertex](r)
		So(err, ShouldBeNil)

		_, err = p.Allocate(2)
		So(errors.Is(err, ErrInvalidSize), ShouldBeTrue)

		v, err := p.Allocate(1)
		So(err, ShouldBeNil)
		So(p.Deallocate(v, 0), ShouldNotBeNil)
		So(p.Deallocate(v, 1), ShouldBeNil)
	})

	Convey("With checks disabled the count parameter is ignored", t, func() {
		r := NewRegistryWithConfig(PoolConfig{Checked: false})
		defer r.Release()

		p, err := For[testVertex](r)
		So(err, ShouldBeNil)

		v, err := p.Allocate(7)
		So(err, ShouldBeNil)
		So(p.Deallocate(v, 7), ShouldBeNil)
	})
}

func TestTypedRebind(t *testing.T) {
	Convey("When rebinding a pool to another element type", t, func() {
		r := NewRegistry()
		defer r.Release()

		vertices, err := Grouped[testVertex](r, "mesh")
		So(err, ShouldBeNil)
		nodes, err := Rebind[testNode](vertices)
		So(err, ShouldBeNil)

		Convey("the result is the node pool of the same registry and group", func() {
			direct, err := Grouped[testNode](r, "mesh")
			So(err, ShouldBeNil)
			So(nodes.Pool(), ShouldEqual, direct.Pool())

			Convey("and it is independent of the origin pool", func() {
				So(nodes.Pool(), ShouldNotEqual, vertices.Pool())
				So(nodes.Pool().SlotSize(), ShouldEqual, reflect.TypeOf(testNode{}).Size())
			})
		})
	})
}

func TestTypedElemType(t *testing.T) {
	Convey("When inspecting a typed pool", t, func() {
		r := NewRegistry()
		defer r.Release()

		p, err := For[testVertex](r)
		So(err, ShouldBeNil)

		So(p.ElemType(), ShouldEqual, reflect.TypeOf(testVertex{}))
		So(p.Pool().SlotSize(), ShouldEqual, reflect.TypeOf(testVertex{}).Size())
	})
}

func TestTypedZeroSize(t *testing.T) {
	Convey("When allocating a zero-size type", t, func() {
		r := NewRegistry()
		defer r.Release()

		p, err := For[struct{}](r)
		So(err, ShouldBeNil)

		Convey("slots are promoted to one byte so addresses stay distinct", func() {
			So(p.Pool().SlotSize(), ShouldEqual, 1)

			s1, err := p.Allocate(1)
			So(err, ShouldBeNil)
			s2, err := p.Allocate(1)
			So(err, ShouldBeNil)
			So(s1, ShouldNotEqual, s2)
		})
	})
}

func TestTypedReserve(t *testing.T) {
	Convey("When reserving through the typed surface", t, func() {
		r := NewRegistry()
		defer r.Release()

		p, err := For[int64](r)
		So(err, ShouldBeNil)

		So(p.Reserve(500), ShouldBeNil)
		So(p.Pool().NumChunks(), ShouldEqual, 2)
	})
}
