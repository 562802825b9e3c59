// Package vote implements optimistic yes/no "was this review helpful" votes
// over HTML forms.
//
// A vote form looks like:
//
//	<form class="review-helpful-vote" method="post" action="/reviews/3/vote/">
//	    <input type="hidden" name="csrf_token" value="...">
//	    <button name="is_positive" value="yes" class="btn btn-primary">Yes
//	        <span class="badge bg-light text-dark ms-1">4</span></button>
//	    <button name="is_positive" value="no" class="btn btn-secondary">No</button>
//	</form>
//
// The selected button carries btn-primary, the other btn-secondary. Each
// button may hold a badge with its tally; a zero tally has no badge.
package vote
